// Package analysis provides the signal analysis backends used by the chop
// pipeline: an in-process implementation built on the dsp package and an
// HTTP client for a remote separation service.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/chopper/internal/audio"
	"github.com/maauso/chopper/internal/chop"
	"github.com/maauso/chopper/internal/dsp"
)

// Local separates and detects onsets in process.
type Local struct {
	nFFT   int
	hop    int
	kernel int
	logger *slog.Logger
}

// LocalOption configures Local.
type LocalOption func(*Local)

// WithKernel sets the HPSS median filter length.
func WithKernel(n int) LocalOption {
	return func(l *Local) {
		if n > 0 {
			l.kernel = n
		}
	}
}

// WithLocalLogger sets the logger.
func WithLocalLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLocal creates an in-process analyser using 2048-sample frames, a
// 512-sample hop and a 31-frame median kernel.
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		nFFT:   dsp.DefaultNFFT,
		hop:    dsp.DefaultHop,
		kernel: dsp.DefaultKernel,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SeparateHarmonic returns the harmonic component of wf.
func (l *Local) SeparateHarmonic(ctx context.Context, wf *audio.Waveform) (*audio.Waveform, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("separate harmonic: %w", err)
	}
	if wf == nil {
		return nil, audio.ErrEmptyInput
	}

	start := time.Now()
	harmonic, _ := dsp.HPSS(wf.Samples, l.nFFT, l.hop, l.kernel)
	l.logger.Debug("harmonic separation complete",
		slog.Float64("duration_seconds", wf.Duration()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return &audio.Waveform{Samples: harmonic, SampleRate: wf.SampleRate, Channels: 1}, nil
}

// DetectOnsets returns onset times of wf in seconds.
func (l *Local) DetectOnsets(ctx context.Context, wf *audio.Waveform, p chop.OnsetParams) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("detect onsets: %w", err)
	}
	if wf == nil || wf.SampleRate <= 0 {
		return nil, audio.ErrInvalidSampleRate
	}
	pp := dsp.PeakPickParams{
		PreMax:  p.PreMax,
		PostMax: p.PostMax,
		PreAvg:  p.PreAvg,
		PostAvg: p.PostAvg,
		Delta:   p.Delta,
		Wait:    p.Wait,
	}
	return dsp.DetectOnsets(wf.Samples, wf.SampleRate, p.HopLength, pp, p.Backtrack), nil
}

var (
	_ chop.Separator     = (*Local)(nil)
	_ chop.OnsetDetector = (*Local)(nil)
)
