// Package bootstrap provides dependency initialization for the chopper server.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maauso/chopper/internal/analysis"
	"github.com/maauso/chopper/internal/audio"
	"github.com/maauso/chopper/internal/catalog"
	"github.com/maauso/chopper/internal/chop"
	"github.com/maauso/chopper/internal/config"
	"github.com/maauso/chopper/internal/janitor"
	"github.com/maauso/chopper/internal/job"
	"github.com/maauso/chopper/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Store       storage.Storage
	Catalog     *catalog.SQLite
	Pipeline    *chop.Pipeline
	ChopService *job.ChopService

	trackJanitor *janitor.Janitor
	jobJanitor   *janitor.Janitor
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize chop catalog
	if err := os.MkdirAll(filepath.Dir(cfg.CatalogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}
	cat, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	logger.Info("chop catalog opened", slog.String("path", cfg.CatalogPath))

	// Initialize signal analysis
	local := analysis.NewLocal(analysis.WithLocalLogger(logger))
	separator, err := initSeparator(cfg, local, logger)
	if err != nil {
		_ = cat.Close()
		return nil, err
	}

	// WAV is decoded natively; everything else goes through ffmpeg.
	decoder := audio.NewAutoDecoder(audio.NewFFmpegDecoder("", cfg.SampleRate))

	pipeline := chop.NewPipeline(store, decoder, separator, local,
		chop.WithRecorder(cat),
		chop.WithWorkers(cfg.FeatureWorkers),
		chop.WithLogger(logger),
	)

	// Initialize ChopService
	svc := job.NewChopService(job.NewMemoryRepository(), pipeline, logger)
	svc.SetTimeout(cfg.JobTimeout())

	return &Dependencies{
		Store:        store,
		Catalog:      cat,
		Pipeline:     pipeline,
		ChopService:  svc,
		trackJanitor: janitor.New(store, cat, cfg.TrackMaxAge(), cfg.CleanupInterval(), logger.With(slog.String("janitor", "tracks"))),
		jobJanitor:   janitor.New(svc, nil, cfg.TrackMaxAge(), cfg.CleanupInterval(), logger.With(slog.String("janitor", "jobs"))),
	}, nil
}

// StartBackground starts the periodic expiry of tracks and finished jobs.
func (d *Dependencies) StartBackground(ctx context.Context) {
	d.trackJanitor.Start(ctx)
	d.jobJanitor.Start(ctx)
}

// Close stops background work and releases the catalog.
func (d *Dependencies) Close() error {
	d.trackJanitor.Stop()
	d.jobJanitor.Stop()
	return d.Catalog.Close()
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	opts := []storage.LocalOption{
		storage.WithMaxFileSize(cfg.MaxFileSize()),
		storage.WithMaxAge(cfg.TrackMaxAge()),
		storage.WithLogger(logger),
	}

	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.StorageDir, s3Cfg, opts...)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.StorageDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("storage_dir", localStore.Dir()),
	)
	return localStore, nil
}

// initSeparator picks the remote separator when one is configured.
func initSeparator(cfg *config.Config, local *analysis.Local, logger *slog.Logger) (chop.Separator, error) {
	if !cfg.RemoteSeparatorEnabled() {
		return local, nil
	}
	remote, err := analysis.NewRemoteSeparator(cfg.SeparatorURL, analysis.WithAPIKey(cfg.SeparatorAPIKey))
	if err != nil {
		return nil, fmt.Errorf("create remote separator: %w", err)
	}
	logger.Info("remote separator configured", slog.String("url", cfg.SeparatorURL))
	return remote, nil
}
