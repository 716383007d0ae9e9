package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// dirStore writes chops as plain files under dir and keeps their metadata
// in memory, keyed by chop name, until it is flushed.
type dirStore struct {
	dir string

	mu       sync.Mutex
	metadata map[string]map[string]any
}

func newDirStore(dir string) (*dirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &dirStore{dir: dir, metadata: make(map[string]map[string]any)}, nil
}

// Put writes data to dir/filename and returns the name without extension.
func (s *dirStore) Put(ctx context.Context, data []byte, filename string, metadata map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := filepath.Base(filename)
	id := strings.TrimSuffix(name, filepath.Ext(name))

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		entry[k] = v
	}
	entry["id"] = id
	entry["path"] = path
	s.metadata[id] = entry
	return id, nil
}

// Get reads back a chop written by Put.
func (s *dirStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	entry, ok := s.metadata[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("chop %s: %w", id, os.ErrNotExist)
	}
	return os.ReadFile(entry["path"].(string))
}

// WriteMetadata writes every chop's metadata as one JSON object keyed by
// chop name.
func (s *dirStore) WriteMetadata(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(s.metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
