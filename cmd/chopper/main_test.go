package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/chopper/internal/audio"
)

// writeClicks writes a WAV of short tone bursts, each a clear onset.
func writeClicks(t *testing.T, path string) {
	t.Helper()
	sr := 22050
	samples := make([]float64, 3*sr)
	for burst := 0; burst < 6; burst++ {
		start := burst * sr / 2
		freq := 220.0
		if burst%2 == 1 {
			freq = 1760
		}
		for i := 0; i < sr/4; i++ {
			samples[start+i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sr))
		}
	}
	data, err := audio.EncodeWAVBytes(samples, sr)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestChopCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "loop.wav")
	writeClicks(t, input)
	outdir := filepath.Join(dir, "out")

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"chop", "--input", input, "--outdir", outdir, "--n_clusters", "2", "--max_chops", "3"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	raw, err := os.ReadFile(filepath.Join(outdir, "chops_metadata.json"))
	require.NoError(t, err)
	var meta map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	require.NotEmpty(t, meta)

	selected := 0
	for name, entry := range meta {
		assert.FileExists(t, filepath.Join(outdir, "harmonic", name+".wav"))
		assert.Equal(t, "loop.wav", entry["source_track_id"])
		assert.Equal(t, "harmonic_chop", entry["processing_type"])
		if entry["selected"] == true {
			selected++
		}
	}
	assert.Equal(t, min(3, len(meta)), selected)
	assert.Contains(t, stdout.String(), "harmonic chops")
	assert.Contains(t, stdout.String(), "DESCRIPTOR")
}

func TestChopCommand_Errors(t *testing.T) {
	t.Run("missing input flag", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"chop"})
		assert.Error(t, cmd.Execute())
	})

	t.Run("invalid params", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"chop", "--input", "x.wav", "--max_chops", "0"})
		assert.Error(t, cmd.Execute())
	})

	t.Run("unreadable input", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"chop", "--input", filepath.Join(t.TempDir(), "nope.wav")})
		assert.Error(t, cmd.Execute())
	})
}

func TestDirStore(t *testing.T) {
	ctx := context.Background()
	s, err := newDirStore(filepath.Join(t.TempDir(), "harmonic"))
	require.NoError(t, err)

	id, err := s.Put(ctx, []byte("RIFF"), "harmonic_Chop_000.wav", map[string]any{"cluster": 1})
	require.NoError(t, err)
	assert.Equal(t, "harmonic_Chop_000", id)

	data, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), data)

	_, err = s.Get(ctx, "unknown")
	assert.ErrorIs(t, err, os.ErrNotExist)

	metaPath := filepath.Join(t.TempDir(), "meta.json")
	require.NoError(t, s.WriteMetadata(metaPath))
	raw, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"harmonic_Chop_000"`)
	assert.Contains(t, string(raw), `"cluster": 1`)
}
