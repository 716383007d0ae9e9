// Package storage provides the track store used by the chopping service.
// It defines the Storage interface (port) and implementations for local
// disk and for local disk mirrored to S3.
package storage

import (
	"context"
	"errors"
	"time"
)

// Errors returned by Storage implementations.
var (
	// ErrNotFound is returned when a track id is unknown.
	ErrNotFound = errors.New("track not found")
	// ErrEmptyData is returned when Put receives no bytes.
	ErrEmptyData = errors.New("empty audio data")
	// ErrFileTooLarge is returned when Put receives more than the configured maximum.
	ErrFileTooLarge = errors.New("file too large")
	// ErrUnsupportedType is returned when the filename has an extension that is not audio.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrS3NotConfigured is returned when S3 operations are attempted without a bucket.
	ErrS3NotConfigured = errors.New("S3 storage is not configured")
)

// AllowedExtensions lists the accepted upload extensions.
var AllowedExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
}

// DefaultExtension is used when a filename carries no extension.
const DefaultExtension = ".wav"

// Record is the sidecar stored next to every blob.
type Record struct {
	TrackID   string         `json:"track_id"`
	Filename  string         `json:"filename"`
	Path      string         `json:"file_path"`
	Size      int64          `json:"file_size"`
	CreatedAt time.Time      `json:"created_at"`
	Extension string         `json:"extension"`
	Metadata  map[string]any `json:"metadata"`
}

// Summary is the lightweight view of a track handed to API clients.
type Summary struct {
	TrackID         string    `json:"track_id"`
	Filename        string    `json:"filename"`
	Size            int64     `json:"file_size"`
	CreatedAt       time.Time `json:"created_at"`
	DurationSeconds any       `json:"duration_seconds"`
	SampleRate      any       `json:"sample_rate"`
	ProcessingType  any       `json:"processing_type"`
	Channels        any       `json:"channels"`
}

// Summary projects the record onto its lightweight view. Metadata values
// that were never set are reported as null.
func (r *Record) Summary() Summary {
	return Summary{
		TrackID:         r.TrackID,
		Filename:        r.Filename,
		Size:            r.Size,
		CreatedAt:       r.CreatedAt,
		DurationSeconds: r.Metadata["duration_seconds"],
		SampleRate:      r.Metadata["sample_rate"],
		ProcessingType:  r.Metadata["processing_type"],
		Channels:        r.Metadata["channels"],
	}
}

// Stats describes the contents of a store.
type Stats struct {
	TotalTracks    int     `json:"total_tracks"`
	TotalSizeBytes int64   `json:"total_size_bytes"`
	TotalSizeMB    float64 `json:"total_size_mb"`
	StorageDir     string  `json:"storage_dir"`
	MaxAgeHours    float64 `json:"max_age_hours"`
	MaxFileSizeMB  float64 `json:"max_file_size_mb"`
}

// Storage stores audio blobs with JSON metadata under generated ids.
// Implementations serialise concurrent access to the same id.
type Storage interface {
	// Put validates and stores data and returns a new track id.
	Put(ctx context.Context, data []byte, filename string, metadata map[string]any) (string, error)

	// Get returns the blob of a track, or ErrNotFound.
	Get(ctx context.Context, id string) ([]byte, error)

	// Record returns the sidecar of a track, or ErrNotFound.
	Record(ctx context.Context, id string) (*Record, error)

	// List returns up to limit summaries, newest first.
	List(ctx context.Context, limit int) ([]Summary, error)

	// Delete removes a track, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Cleanup removes tracks older than maxAge together with orphaned or
	// unreadable sidecars and returns the removed ids.
	Cleanup(ctx context.Context, maxAge time.Duration) ([]string, error)

	// Stats summarises the store.
	Stats(ctx context.Context) (Stats, error)
}
