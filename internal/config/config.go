// Package config loads customersvc settings from defaults, an optional YAML
// file, a .env file and CUSTOMERSVC_* environment variables, in that order.
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jmcleod/customersvc/internal/util"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CUSTOMERSVC_"

const (
	BackendMemory   = "memory"
	BackendBBolt    = "bbolt"
	BackendPostgres = "postgres"
)

const (
	minPasswordSaltSize = 16
	sealingKeySize      = util.AESKeySize
	minSigningKeySize   = 32
)

type Config struct {
	Port          int           `yaml:"port"`
	DataDir       string        `yaml:"data_dir"`
	ActivationURL string        `yaml:"activation_url"`
	TLS           TLSConfig     `yaml:"tls"`
	Storage       StorageConfig `yaml:"storage"`
	Redis         RedisConfig   `yaml:"redis"`
	Session       SessionConfig `yaml:"session"`
	Keys          KeysConfig    `yaml:"keys"`
	TOTP          TOTPConfig    `yaml:"totp"`
	Log           LogConfig     `yaml:"log"`
}

// TLSConfig selects the server certificate. With neither file set a
// self-signed certificate is generated unless Disabled is true.
type TLSConfig struct {
	Cert     string `yaml:"cert"`
	Key      string `yaml:"key"`
	Disabled bool   `yaml:"disabled"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// RedisConfig locates the outbound e-mail queue. An empty Addr logs e-mail
// instead of queueing it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Queue    string `yaml:"queue"`
}

type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// KeysConfig holds hex-encoded server secrets.
type KeysConfig struct {
	PasswordSalt string `yaml:"password_salt"`
	SealingKey   string `yaml:"sealing_key"`
	SigningKey   string `yaml:"signing_key"`
}

type TOTPConfig struct {
	Issuer string `yaml:"issuer"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Port:    8443,
		DataDir: "./data",
		Storage: StorageConfig{Backend: BackendBBolt},
		Redis:   RedisConfig{Queue: "customersvc:email"},
		Session: SessionConfig{TTL: 15 * time.Minute},
		TOTP:    TOTPConfig{Issuer: "customersvc"},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds a Config from defaults, the YAML file at path (if non-empty),
// envFile (if it exists) and the process environment. Variables already set
// in the environment take precedence over envFile.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	integer("PORT", &c.Port)
	str("DATA_DIR", &c.DataDir)
	str("ACTIVATION_URL", &c.ActivationURL)
	str("TLS_CERT", &c.TLS.Cert)
	str("TLS_KEY", &c.TLS.Key)
	boolean("TLS_DISABLED", &c.TLS.Disabled)
	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	integer("REDIS_DB", &c.Redis.DB)
	str("REDIS_QUEUE", &c.Redis.Queue)
	duration("SESSION_TTL", &c.Session.TTL)
	str("PASSWORD_SALT", &c.Keys.PasswordSalt)
	str("SEALING_KEY", &c.Keys.SealingKey)
	str("SIGNING_KEY", &c.Keys.SigningKey)
	str("TOTP_ISSUER", &c.TOTP.Issuer)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	return errors.Join(errs...)
}

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendBBolt:
		if c.DataDir == "" {
			errs = append(errs, errors.New("data_dir is required for the bbolt backend"))
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		errs = append(errs, errors.New("tls.cert and tls.key must be set together"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.Redis.Addr != "" && c.Redis.Queue == "" {
		errs = append(errs, errors.New("redis.queue is required when redis.addr is set"))
	}
	if c.TOTP.Issuer == "" {
		errs = append(errs, errors.New("totp.issuer is required"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Keys are the decoded server secrets.
type Keys struct {
	PasswordSalt []byte
	SealingKey   []byte
	SigningKey   []byte
	// Generated names the keys that were missing and randomly generated.
	Generated []string
}

// Wipe zeroes the key material.
func (k *Keys) Wipe() {
	util.WipeBytes(k.PasswordSalt)
	util.WipeBytes(k.SealingKey)
	util.WipeBytes(k.SigningKey)
}

// ResolveKeys decodes the configured secrets. Missing secrets are generated
// for the memory backend and rejected for persistent backends, where a fresh
// key would orphan stored passwords, secrets and tokens.
func (c *Config) ResolveKeys() (*Keys, error) {
	k := &Keys{}
	var errs []error
	resolve := func(name, hexValue string, size int, exact bool, dst *[]byte) {
		if hexValue == "" {
			if c.Storage.Backend != BackendMemory {
				errs = append(errs, fmt.Errorf("keys.%s is required for the %s backend", name, c.Storage.Backend))
				return
			}
			b, err := util.RandomBytes(size)
			if err != nil {
				errs = append(errs, err)
				return
			}
			*dst = b
			k.Generated = append(k.Generated, name)
			return
		}
		var (
			b   []byte
			err error
		)
		if exact {
			b, err = util.HexDecodeKey(hexValue, size)
		} else {
			b, err = hex.DecodeString(hexValue)
			if err == nil && len(b) < size {
				err = fmt.Errorf("key must be at least %d bytes, got %d", size, len(b))
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("keys.%s: %w", name, err))
			return
		}
		*dst = b
	}
	resolve("password_salt", c.Keys.PasswordSalt, minPasswordSaltSize, false, &k.PasswordSalt)
	resolve("sealing_key", c.Keys.SealingKey, sealingKeySize, true, &k.SealingKey)
	resolve("signing_key", c.Keys.SigningKey, minSigningKeySize, false, &k.SigningKey)
	if err := errors.Join(errs...); err != nil {
		k.Wipe()
		return nil, err
	}
	return k, nil
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
