package storage

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMaxFileSize = 100 << 20
	defaultMaxAge      = 24 * time.Hour
	sidecarExt         = ".json"
)

// LocalStorage implements the Storage interface on local disk.
// Every track is a blob <id><ext> plus a JSON sidecar <id>.json in one directory.
type LocalStorage struct {
	dir         string
	maxFileSize int64
	maxAge      time.Duration
	logger      *slog.Logger

	mu sync.RWMutex
}

// LocalOption configures a LocalStorage.
type LocalOption func(*LocalStorage)

// WithMaxFileSize sets the largest accepted blob in bytes.
func WithMaxFileSize(n int64) LocalOption {
	return func(s *LocalStorage) {
		if n > 0 {
			s.maxFileSize = n
		}
	}
}

// WithMaxAge sets the retention reported by Stats.
func WithMaxAge(d time.Duration) LocalOption {
	return func(s *LocalStorage) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) LocalOption {
	return func(s *LocalStorage) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewLocalStorage creates a new LocalStorage instance.
// If dir is empty, a chopper directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(dir string, opts ...LocalOption) (*LocalStorage, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "chopper")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	s := &LocalStorage{
		dir:         dir,
		maxFileSize: defaultMaxFileSize,
		maxAge:      defaultMaxAge,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the storage directory path.
func (s *LocalStorage) Dir() string {
	return s.dir
}

// Put validates and stores data under a new UUID.
// A failed sidecar write removes the blob again.
func (s *LocalStorage) Put(ctx context.Context, data []byte, filename string, metadata map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}
	ext, err := s.validate(data, filename)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	if filename == "" {
		filename = "audio" + ext
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	rec := &Record{
		TrackID:   id,
		Filename:  filename,
		Path:      s.blobPath(id, ext),
		Size:      int64(len(data)),
		CreatedAt: time.Now().UTC(),
		Extension: ext,
		Metadata:  metadata,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked(rec, data); err != nil {
		return "", err
	}

	s.logger.Debug("track stored", slog.String("track_id", id), slog.Int64("size", rec.Size))
	return id, nil
}

// writeLocked writes blob and sidecar. The caller holds s.mu.
func (s *LocalStorage) writeLocked(rec *Record, data []byte) error {
	if err := os.WriteFile(rec.Path, data, 0600); err != nil {
		_ = os.Remove(rec.Path)
		return fmt.Errorf("write audio file: %w", err)
	}
	if err := s.writeSidecar(rec); err != nil {
		_ = os.Remove(rec.Path)
		return err
	}
	return nil
}

func (s *LocalStorage) validate(data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyData
	}
	if int64(len(data)) > s.maxFileSize {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, len(data), s.maxFileSize)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return DefaultExtension, nil
	}
	if !AllowedExtensions[ext] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
	return ext, nil
}

// Get returns the blob of a track.
func (s *LocalStorage) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.readSidecar(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(rec.Path) // #nosec G304 - path comes from our own sidecar
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("audio file missing for track", slog.String("track_id", id))
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read audio file: %w", err)
	}
	return data, nil
}

// Record returns the sidecar of a track.
func (s *LocalStorage) Record(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readSidecar(id)
}

// List returns up to limit summaries sorted by creation time, newest first.
// A non-positive limit returns every track.
func (s *LocalStorage) List(ctx context.Context, limit int) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	s.mu.RLock()
	ids, err := s.sidecarIDs()
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	summaries := make([]Summary, 0, len(ids))
	for _, id := range ids {
		rec, err := s.readSidecar(id)
		if err != nil {
			continue
		}
		summaries = append(summaries, rec.Summary())
	}
	s.mu.RUnlock()

	slices.SortFunc(summaries, func(a, b Summary) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.TrackID, b.TrackID))
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// Delete removes the blob and sidecar of a track.
func (s *LocalStorage) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.readSidecar(id)
	if err != nil {
		return err
	}
	return s.removeLocked(id, rec.Path)
}

// removeLocked deletes the blob at path (if any) and the sidecar of id.
func (s *LocalStorage) removeLocked(id, path string) error {
	if path != "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove audio file %s: %w", path, err)
		}
	}
	if err := os.Remove(s.sidecarPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove metadata %s: %w", id, err)
	}
	s.logger.Debug("track deleted", slog.String("track_id", id))
	return nil
}

// Cleanup removes tracks older than maxAge and any sidecar that cannot be read.
// It continues past individual failures and returns the first error encountered.
func (s *LocalStorage) Cleanup(ctx context.Context, maxAge time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.sidecarIDs()
	if err != nil {
		return nil, err
	}

	var (
		removed  []string
		firstErr error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return removed, fmt.Errorf("context cancelled: %w", err)
		}

		path := ""
		rec, err := s.readSidecar(id)
		switch {
		case err != nil:
			s.logger.Warn("removing invalid track metadata", slog.String("track_id", id), slog.String("error", err.Error()))
		case rec.CreatedAt.Before(cutoff):
			path = rec.Path
		default:
			continue
		}

		if err := s.removeLocked(id, path); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed = append(removed, id)
	}

	if len(removed) > 0 {
		s.logger.Info("cleaned up old tracks", slog.Int("count", len(removed)))
	}
	return removed, firstErr
}

// Stats counts tracks and their total size.
func (s *LocalStorage) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, fmt.Errorf("context cancelled: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.sidecarIDs()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		TotalTracks:   len(ids),
		StorageDir:    s.dir,
		MaxAgeHours:   s.maxAge.Hours(),
		MaxFileSizeMB: roundMB(s.maxFileSize),
	}
	for _, id := range ids {
		if rec, err := s.readSidecar(id); err == nil {
			st.TotalSizeBytes += rec.Size
		}
	}
	st.TotalSizeMB = roundMB(st.TotalSizeBytes)
	return st, nil
}

func roundMB(n int64) float64 {
	return math.Round(float64(n)/(1<<20)*100) / 100
}

func (s *LocalStorage) blobPath(id, ext string) string {
	return filepath.Join(s.dir, id+ext)
}

func (s *LocalStorage) sidecarPath(id string) string {
	return filepath.Join(s.dir, id+sidecarExt)
}

// readSidecar loads the record of id. Ids that are not UUIDs are reported
// as unknown so they can never address files outside the directory.
func (s *LocalStorage) readSidecar(id string) (*Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	raw, err := os.ReadFile(s.sidecarPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read metadata %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", id, err)
	}
	if rec.Path == "" {
		rec.Path = s.blobPath(id, cmp.Or(rec.Extension, DefaultExtension))
	}
	return &rec, nil
}

func (s *LocalStorage) writeSidecar(rec *Record) error {
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(s.sidecarPath(rec.TrackID), raw, 0600); err != nil {
		_ = os.Remove(s.sidecarPath(rec.TrackID))
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// sidecarIDs lists the ids of every sidecar in the directory.
func (s *LocalStorage) sidecarIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read storage directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != sidecarExt {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, sidecarExt))
	}
	return ids, nil
}

var _ Storage = (*LocalStorage)(nil)
