// Package audio provides the in-memory waveform representation used by the
// chopping pipeline, together with WAV and ffmpeg based codecs.
package audio

import (
	"errors"
	"math"
)

// ErrInvalidSampleRate is returned when a waveform is built with a non-positive sample rate.
var ErrInvalidSampleRate = errors.New("audio: sample rate must be positive")

// Waveform is an immutable mono sample buffer.
// Samples are normalised to [-1, 1]. Channels records the channel count of the
// source before mixdown and is informational only.
type Waveform struct {
	Samples    []float64
	SampleRate int
	Channels   int
}

// NewWaveform creates a mono waveform. Channels is set to 1.
func NewWaveform(samples []float64, sampleRate int) (*Waveform, error) {
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	return &Waveform{Samples: samples, SampleRate: sampleRate, Channels: 1}, nil
}

// Duration returns the length of the waveform in seconds.
func (w *Waveform) Duration() float64 {
	if w == nil || w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Slice returns the samples between start and end seconds.
// Boundaries are converted with round(t*sr) and clipped to the buffer, so an
// interval that lies past the end of the track yields a short or empty slice.
// The returned slice shares memory with the waveform and must not be modified.
func (w *Waveform) Slice(start, end float64) []float64 {
	n := len(w.Samples)
	s := clampIndex(int(math.Round(start*float64(w.SampleRate))), n)
	e := clampIndex(int(math.Round(end*float64(w.SampleRate))), n)
	if e <= s {
		return w.Samples[s:s]
	}
	return w.Samples[s:e]
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// Mixdown averages interleaved multi-channel samples into a mono buffer.
// A trailing partial frame is dropped.
func Mixdown(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		out := make([]float64, len(interleaved))
		copy(out, interleaved)
		return out
	}
	frames := len(interleaved) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float64(channels)
	}
	return out
}
