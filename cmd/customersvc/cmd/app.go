package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/jmcleod/customersvc/account"
	"github.com/jmcleod/customersvc/api"
	"github.com/jmcleod/customersvc/internal/config"
	"github.com/jmcleod/customersvc/internal/util"
	"github.com/jmcleod/customersvc/notify"
	"github.com/jmcleod/customersvc/storage"
	bboltstorage "github.com/jmcleod/customersvc/storage/bbolt"
	"github.com/jmcleod/customersvc/storage/memory"
	"github.com/jmcleod/customersvc/storage/postgres"
	"github.com/jmcleod/customersvc/totp"
)

const bboltFile = "customersvc.db"

var argonParams = util.DefaultArgon2idParams()

// app is the wired service: storage, e-mail queue, account engines and the
// HTTP handler.
type app struct {
	handler http.Handler
	logger  *slog.Logger
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	keys, err := cfg.ResolveKeys()
	if err != nil {
		return nil, err
	}
	defer keys.Wipe()
	for _, name := range keys.Generated {
		logger.Warn("generated ephemeral key; restarts invalidate existing data", slog.String("key", name))
	}

	repo, err := a.openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	mailer, err := a.newMailer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	hasher, err := account.NewPasswordHasher(keys.PasswordSalt, argonParams)
	if err != nil {
		return nil, err
	}
	sealer, err := account.NewSecretSealer(keys.SealingKey)
	if err != nil {
		return nil, err
	}
	signer, err := account.NewTokenSigner(keys.SigningKey, cfg.TOTP.Issuer)
	if err != nil {
		return nil, err
	}
	provider := totp.NewProvider(cfg.TOTP.Issuer)

	opts := []account.Option{
		account.WithLogger(logger),
		account.WithSessionTTL(cfg.Session.TTL),
		account.WithActivationURL(cfg.ActivationURL),
	}
	clients := account.NewClientService(repo, hasher, sealer, provider, mailer, opts...)
	sessions := account.NewSessionService(repo, clients, opts...)
	tokens := account.NewTokenService(repo, signer, opts...)

	a.handler = newRouter(api.New(clients, sessions, tokens, api.WithLogger(logger)))
	return a, nil
}

func (a *app) openStorage(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return memory.NewRepository(), nil
	case config.BackendBBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(cfg.DataDir, bboltFile), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open bbolt storage: %w", err)
		}
		a.closers = append(a.closers, repo.Close)
		return repo, nil
	case config.BackendPostgres:
		repo, err := postgres.NewRepositoryFromDSN(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		a.closers = append(a.closers, func() error {
			repo.Close()
			return nil
		})
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// newMailer queues e-mail on Redis when an address is configured and logs it
// otherwise.
func (a *app) newMailer(ctx context.Context, cfg *config.Config) (*notify.Mailer, error) {
	var sender notify.Sender
	if cfg.Redis.Addr == "" {
		a.logger.Warn("no redis address configured; e-mail will only be logged")
		sender = notify.NewLogSender(a.logger, notify.KindEmail)
	} else {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		sender = notify.NewRedisSender(rdb, notify.KindEmail, cfg.Redis.Queue)
	}
	d, err := notify.NewDispatcher(sender)
	if err != nil {
		return nil, err
	}
	return notify.NewMailer(d), nil
}

// Close releases storage and queue connections in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newRouter(a *api.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Mount("/api/v1", a.Router())
	return r
}
