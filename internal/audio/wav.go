package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when the input is not a decodable WAV file.
var ErrInvalidWAV = errors.New("audio: invalid WAV data")

// outputBitDepth is the PCM bit depth used when encoding chops.
const outputBitDepth = 16

// DecodeWAV decodes a PCM WAV stream into a normalised mono waveform.
// Multi-channel input is mixed down by averaging channels.
func DecodeWAV(r io.ReadSeeker) (*Waveform, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read PCM buffer: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: missing format", ErrInvalidWAV)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(decoder.BitDepth)
	}
	if bitDepth <= 0 {
		return nil, fmt.Errorf("%w: unknown bit depth", ErrInvalidWAV)
	}
	scale := math.Pow(2, float64(bitDepth-1))

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}

	interleaved := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		interleaved[i] = float64(v) / scale
	}

	return &Waveform{
		Samples:    Mixdown(interleaved, channels),
		SampleRate: buf.Format.SampleRate,
		Channels:   channels,
	}, nil
}

// DecodeWAVBytes is a convenience wrapper around DecodeWAV for in-memory data.
func DecodeWAVBytes(data []byte) (*Waveform, error) {
	return DecodeWAV(bytes.NewReader(data))
}

// EncodeWAV writes samples as a 16-bit mono PCM WAV file.
// Samples outside [-1, 1] are clipped.
func EncodeWAV(w io.WriteSeeker, samples []float64, sampleRate int) error {
	if sampleRate <= 0 {
		return ErrInvalidSampleRate
	}

	encoder := wav.NewEncoder(w, sampleRate, outputBitDepth, 1, 1)

	maxVal := math.Pow(2, outputBitDepth-1) - 1
	data := make([]int, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		}
		if s < -1 {
			s = -1
		}
		data[i] = int(math.Round(s * maxVal))
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: outputBitDepth,
	}

	if err := encoder.Write(buf); err != nil {
		return fmt.Errorf("write WAV samples: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("close WAV encoder: %w", err)
	}
	return nil
}

// EncodeWAVBytes encodes samples to an in-memory WAV file.
// Empty input is padded to 10ms of silence so the file is always playable.
func EncodeWAVBytes(samples []float64, sampleRate int) ([]byte, error) {
	if len(samples) == 0 && sampleRate > 0 {
		samples = make([]float64, int(0.01*float64(sampleRate)))
	}

	// go-audio's encoder needs a WriteSeeker to patch the RIFF header sizes.
	f, err := os.CreateTemp("", "chop_*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp WAV: %w", err)
	}
	name := f.Name()
	defer func() { _ = os.Remove(name) }()

	if err := EncodeWAV(f, samples, sampleRate); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close temp WAV: %w", err)
	}

	data, err := os.ReadFile(name) // #nosec G304 - path created above
	if err != nil {
		return nil, fmt.Errorf("read temp WAV: %w", err)
	}
	return data, nil
}
