// auth-server exchanges an OpenID Connect login for a v4.public session
// token and serves a small authenticated API behind it.
//
// Configuration comes from a YAML file (--config or PASETOX_CONFIG) with
// secrets and PORT taken from the environment or a .env file when the file
// leaves them empty.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	pasetox "github.com/bionicotaku/lingo-utils-pasetox"
	"github.com/bionicotaku/lingo-utils-pasetox/internal/dotenv"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, envPath string
	flagSet := pflag.NewFlagSet("auth-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", os.Getenv(envConfig), "path to YAML config (env "+envConfig+")")
	flagSet.StringVar(&envPath, "env", dotenv.DefaultPath(), "path to .env file")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := dotenv.Load(envPath, bootLogger); err != nil {
		bootLogger.Warn("load env file", "path", envPath, "error", err)
	}
	if configPath == "" {
		configPath = os.Getenv(envConfig)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	logger := newLogger(cfg)

	keys, err := cfg.Keys.Load()
	if err != nil {
		return fmt.Errorf("load keys: %w", err)
	}
	authority, err := pasetox.NewAuthority(keys, pasetox.WithLogger(logger))
	if err != nil {
		return err
	}
	if !authority.CanIssue() {
		logger.Warn("no signing key configured, running verify-only", "key", keys.Fingerprint())
	}

	var login loginFlow
	if cfg.loginEnabled() {
		validator, err := pasetox.NewIdentityValidator(cfg.Identity)
		if err != nil {
			return fmt.Errorf("identity validator: %w", err)
		}
		exchanger, err := pasetox.NewExchanger(cfg.Exchange, validator)
		if err != nil {
			return fmt.Errorf("exchanger: %w", err)
		}
		warmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := validator.Warmup(warmCtx, cfg.Exchange.Issuer); err != nil {
			logger.Warn("identity provider warmup failed", "issuer", cfg.Exchange.Issuer, "code", pasetox.CodeOf(err), "error", err)
		}
		cancel()
		login = exchanger
	} else {
		logger.Info("OAuth login disabled, no client configured")
	}
	if cfg.DevBypass != nil {
		logger.Warn("dev bypass enabled, requests without a token are admitted", "subject", cfg.DevBypass.Subject)
	}

	gin.SetMode(cfg.Mode)
	srv := newServer(authority, login, cfg, logger)
	return serve(srv, net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), logger)
}

func newLogger(cfg *Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// serve runs the HTTP server until SIGINT or SIGTERM, then shuts it down.
func serve(srv *server, addr string, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("auth server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case err := <-serveErr:
		return err
	case sig := <-signals:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
