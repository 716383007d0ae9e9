// Package main runs the chopper HTTP API.
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

	"github.com/maauso/chopper/internal/bootstrap"
	"github.com/maauso/chopper/internal/config"
	"github.com/maauso/chopper/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "chopper: %v\n", err)
		os.Exit(1)
	}
}

// run serves the API until ctx is cancelled or the listener fails.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", slog.String("config", cfg.String()))

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error("failed to release dependencies", slog.String("error", err.Error()))
		}
	}()
	// Janitors stop with the signal context.
	deps.StartBackground(ctx)

	handlers := server.NewHandlers(deps.Store, deps.ChopService, deps.Pipeline, logger,
		server.WithCatalog(deps.Catalog),
		server.WithDefaultParams(cfg.ChopParams()),
		server.WithMaxUploadSize(cfg.MaxFileSize()),
	)
	srv := &http.Server{
		Addr: net.JoinHostPort("", strconv.Itoa(cfg.Port)),
		Handler: server.NewRouter(handlers, logger, server.Config{
			AllowedOrigins: cfg.AllowedOrigins,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Harmonic extraction answers synchronously.
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("chopper API listening",
			slog.String("addr", srv.Addr),
			slog.String("storage_dir", cfg.StorageDir),
			slog.Bool("s3_enabled", cfg.S3Enabled()),
			slog.Bool("remote_separator", cfg.RemoteSeparatorEnabled()),
			slog.Int("feature_workers", cfg.FeatureWorkers),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown requested", slog.Duration("timeout", cfg.ShutdownTimeout()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
