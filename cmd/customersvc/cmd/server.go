package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/customersvc/internal/config"
	"github.com/jmcleod/customersvc/internal/util"
)

var (
	port      int
	dataDir   string
	tlsCert   string
	tlsKey    string
	noTLS     bool
	backend   string
	logLevel  string
	logFormat string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the customer account service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, envFile)
		if err != nil {
			return err
		}
		applyFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger, err := cfg.Log.NewLogger(os.Stderr)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		tlsConfig, err := serverTLSConfig(cfg.TLS)
		if err != nil {
			return err
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           a.handler,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			var err error
			if tlsConfig != nil {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		logger.Info("starting server",
			slog.Int("port", cfg.Port),
			slog.String("storage", cfg.Storage.Backend),
			slog.Bool("tls", tlsConfig != nil),
		)

		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// serverTLSConfig returns nil when TLS is disabled.
func serverTLSConfig(c config.TLSConfig) (*tls.Config, error) {
	if c.Disabled {
		return nil, nil
	}
	var cert tls.Certificate
	var err error
	if c.Cert != "" && c.Key != "" {
		cert, err = tls.LoadX509KeyPair(c.Cert, c.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
	} else {
		cert, err = util.GenerateSelfSignedCert()
		if err != nil {
			return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		fmt.Println("Using self-signed runtime generated certificate for TLS")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Port = port
	}
	if f.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if f.Changed("tls-cert") {
		cfg.TLS.Cert = tlsCert
	}
	if f.Changed("tls-key") {
		cfg.TLS.Key = tlsKey
	}
	if f.Changed("no-tls") {
		cfg.TLS.Disabled = noTLS
	}
	if f.Changed("storage") {
		cfg.Storage.Backend = backend
	}
	if f.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if f.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8443, "Port to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
	serverCmd.Flags().BoolVar(&noTLS, "no-tls", false, "Serve plain HTTP")
	serverCmd.Flags().StringVar(&backend, "storage", "bbolt", "Storage backend: memory, bbolt or postgres")
	serverCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	serverCmd.Flags().StringVar(&logFormat, "log-format", "json", "Log format: json or text")
}
