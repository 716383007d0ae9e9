package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrEmptyInput is returned when there is no data to decode.
var ErrEmptyInput = errors.New("audio: empty input")

// Decoder turns encoded audio bytes into a waveform.
type Decoder interface {
	// Decode decodes data. The filename is a hint for the container format.
	Decode(ctx context.Context, data []byte, filename string) (*Waveform, error)
}

// FFmpegDecoder decodes any container ffmpeg understands into mono float PCM.
type FFmpegDecoder struct {
	ffmpegPath string
	sampleRate int
}

// NewFFmpegDecoder creates a new FFmpegDecoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
// Output is resampled to sampleRate; 44100 is used when sampleRate is not positive.
func NewFFmpegDecoder(ffmpegPath string, sampleRate int) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &FFmpegDecoder{ffmpegPath: ffmpegPath, sampleRate: sampleRate}
}

// Decode pipes data through ffmpeg and reads back little-endian float32 samples.
func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte, _ string) (*Waveform, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", "1",
		"-ar", strconv.Itoa(d.sampleRate),
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	return &Waveform{
		Samples:    parseFloat32LE(stdout.Bytes()),
		SampleRate: d.sampleRate,
		Channels:   1,
	}, nil
}

// parseFloat32LE converts raw f32le bytes to samples. A trailing partial sample is dropped.
func parseFloat32LE(raw []byte) []float64 {
	n := len(raw) / 4
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4 : i*4+4])))
	}
	return samples
}

// AutoDecoder decodes WAV natively and hands every other format to ffmpeg.
type AutoDecoder struct {
	fallback Decoder
}

// NewAutoDecoder creates a decoder that uses fallback for non-WAV input.
// fallback may be nil, in which case non-WAV input is rejected.
func NewAutoDecoder(fallback Decoder) *AutoDecoder {
	return &AutoDecoder{fallback: fallback}
}

// Decode implements Decoder.
func (d *AutoDecoder) Decode(ctx context.Context, data []byte, filename string) (*Waveform, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	if isWAV(data) {
		return DecodeWAVBytes(data)
	}
	if d.fallback == nil {
		return nil, fmt.Errorf("audio: no decoder for %q", filepath.Ext(filename))
	}
	return d.fallback.Decode(ctx, data, filename)
}

func isWAV(data []byte) bool {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return true
	}
	return false
}

// Verify interface implementation at compile time.
var (
	_ Decoder = (*FFmpegDecoder)(nil)
	_ Decoder = (*AutoDecoder)(nil)
)
