// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/chopper/internal/chop"
)

// Static errors for configuration validation.
var (
	// ErrInvalidConfig is returned when a value is out of range.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int     `env:"PORT, default=8080" json:"port" validate:"gt=0,lte=65535"`
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS, default=20" json:"rate_limit_rps" validate:"gt=0"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST, default=40" json:"rate_limit_burst" validate:"gte=1"`
	// AllowedOrigins lists the CORS origins, comma separated; "*" allows any.
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS, default=*" json:"cors_allowed_origins" validate:"min=1"`
	// ShutdownTimeoutSec bounds graceful shutdown of the HTTP server.
	ShutdownTimeoutSec int `env:"SHUTDOWN_TIMEOUT_SEC, default=30" json:"shutdown_timeout_sec" validate:"gte=1"`

	// Storage settings
	StorageDir         string `env:"STORAGE_DIR, default=/tmp/chopper" json:"storage_dir" validate:"required"`
	MaxFileSizeMB      int    `env:"MAX_FILE_SIZE_MB, default=100" json:"max_file_size_mb" validate:"gt=0"`
	TrackMaxAgeHours   int    `env:"TRACK_MAX_AGE_HOURS, default=24" json:"track_max_age_hours" validate:"gt=0"`
	CleanupIntervalMin int    `env:"CLEANUP_INTERVAL_MIN, default=60" json:"cleanup_interval_min" validate:"gt=0"`
	CatalogPath        string `env:"CATALOG_PATH" json:"catalog_path"`

	// Processing settings
	SampleRate     int     `env:"SAMPLE_RATE, default=44100" json:"sample_rate" validate:"gt=0"`
	FeatureWorkers int     `env:"FEATURE_WORKERS, default=4" json:"feature_workers" validate:"gte=1"`
	JobTimeoutMin  int     `env:"JOB_TIMEOUT_MIN, default=30" json:"job_timeout_min" validate:"gt=0"`
	MinDuration    float64 `env:"CHOP_MIN_DURATION, default=0.2" json:"chop_min_duration" validate:"gt=0"`
	DefaultLength  float64 `env:"CHOP_DEFAULT_LENGTH, default=1.8" json:"chop_default_length" validate:"gt=0"`
	NClusters      int     `env:"CHOP_N_CLUSTERS, default=6" json:"chop_n_clusters" validate:"gte=1"`
	MaxChops       int     `env:"CHOP_MAX_CHOPS, default=6" json:"chop_max_chops" validate:"gte=1"`

	// Onset detection settings
	OnsetHopLength int     `env:"ONSET_HOP_LENGTH, default=512" json:"onset_hop_length" validate:"gt=0"`
	OnsetPreMax    int     `env:"ONSET_PRE_MAX, default=7" json:"onset_pre_max" validate:"gte=0"`
	OnsetPostMax   int     `env:"ONSET_POST_MAX, default=7" json:"onset_post_max" validate:"gte=1"`
	OnsetPreAvg    int     `env:"ONSET_PRE_AVG, default=7" json:"onset_pre_avg" validate:"gte=0"`
	OnsetPostAvg   int     `env:"ONSET_POST_AVG, default=7" json:"onset_post_avg" validate:"gte=1"`
	OnsetDelta     float64 `env:"ONSET_DELTA, default=0.25" json:"onset_delta" validate:"gte=0"`
	OnsetWait      int     `env:"ONSET_WAIT, default=0" json:"onset_wait" validate:"gte=0"`
	OnsetBacktrack bool    `env:"ONSET_BACKTRACK, default=false" json:"onset_backtrack"`

	// Optional remote separator
	SeparatorURL    string `env:"SEPARATOR_URL" json:"separator_url,omitempty" validate:"omitempty,url"`
	SeparatorAPIKey string `env:"SEPARATOR_API_KEY" json:"-"` // Masked in JSON

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=json text JSON TEXT"`
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"` // "debug", "info", "warn", "error"
}

var validate = validator.New()

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// RemoteSeparatorEnabled reports whether harmonic separation is delegated
// to an HTTP service.
func (c *Config) RemoteSeparatorEnabled() bool {
	return c.SeparatorURL != ""
}

// Load reads a .env file if one exists, then configuration from environment
// variables using go-envconfig, and validates the result.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv paths. Missing files are ignored and
// variables already set in the environment win.
func LoadFiles(files ...string) (*Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = filepath.Join(cfg.StorageDir, "catalog.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every value against its bounds.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	return nil
}

// ChopParams returns the default pipeline parameters from the configuration.
func (c *Config) ChopParams() chop.Params {
	return chop.Params{
		MinDuration:   c.MinDuration,
		DefaultLength: c.DefaultLength,
		NClusters:     c.NClusters,
		MaxChops:      c.MaxChops,
		Onset: chop.OnsetParams{
			HopLength: c.OnsetHopLength,
			PreMax:    c.OnsetPreMax,
			PostMax:   c.OnsetPostMax,
			PreAvg:    c.OnsetPreAvg,
			PostAvg:   c.OnsetPostAvg,
			Delta:     c.OnsetDelta,
			Wait:      c.OnsetWait,
			Backtrack: c.OnsetBacktrack,
		},
	}
}

// MaxFileSize returns the upload limit in bytes.
func (c *Config) MaxFileSize() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// TrackMaxAge returns how long stored tracks are kept.
func (c *Config) TrackMaxAge() time.Duration {
	return time.Duration(c.TrackMaxAgeHours) * time.Hour
}

// CleanupInterval returns the janitor period.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMin) * time.Minute
}

// JobTimeout returns the limit for a single chop job.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutMin) * time.Minute
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
// ShutdownTimeout returns ShutdownTimeoutSec as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, StorageDir: %s, CatalogPath: %s, MaxFileSizeMB: %d, TrackMaxAgeHours: %d, SampleRate: %d, FeatureWorkers: %d, SeparatorURL: %s, SeparatorAPIKey: %s, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, AWSAccessKeyID: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.StorageDir,
		c.CatalogPath,
		c.MaxFileSizeMB,
		c.TrackMaxAgeHours,
		c.SampleRate,
		c.FeatureWorkers,
		c.SeparatorURL,
		mask(c.SeparatorAPIKey),
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		mask(c.AWSAccessKeyID),
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
