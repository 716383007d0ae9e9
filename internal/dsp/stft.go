// Package dsp implements the signal-analysis primitives the chopping pipeline
// relies on: short-time Fourier transforms, harmonic/percussive separation,
// onset detection and frame-level timbre descriptors.
//
// Defaults follow the conventions of common music-information-retrieval
// toolkits (2048-sample frames, 512-sample hop, centred frames, periodic Hann
// window) so that descriptors are comparable with externally computed ones.
package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// DefaultNFFT is the analysis frame length in samples.
	DefaultNFFT = 2048
	// DefaultHop is the distance between successive frames in samples.
	DefaultHop = 512
)

// tiny guards divisions by values that are numerically zero.
const tiny = 1e-300

// Spectrogram is a complex short-time spectrum indexed as [frame][bin].
type Spectrogram struct {
	Frames [][]complex128
	NFFT   int
	Hop    int
	// Length is the number of samples of the analysed signal.
	Length int
}

// Bins returns the number of frequency bins per frame.
func (s *Spectrogram) Bins() int {
	return s.NFFT/2 + 1
}

// Magnitude returns |X| raised to power (1 for magnitude, 2 for power).
func (s *Spectrogram) Magnitude(power float64) [][]float64 {
	out := make([][]float64, len(s.Frames))
	for t, frame := range s.Frames {
		row := make([]float64, len(frame))
		for k, c := range frame {
			m := cmplx.Abs(c)
			if power != 1 {
				m = math.Pow(m, power)
			}
			row[k] = m
		}
		out[t] = row
	}
	return out
}

// HannWindow returns a periodic Hann window of length n.
func HannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// FFTFrequencies returns the centre frequency in Hz of every bin of an nFFT-point real FFT.
func FFTFrequencies(sampleRate, nFFT int) []float64 {
	bins := nFFT/2 + 1
	freqs := make([]float64, bins)
	for k := range freqs {
		freqs[k] = float64(k) * float64(sampleRate) / float64(nFFT)
	}
	return freqs
}

// frameCount returns the number of centred frames for a signal of n samples.
func frameCount(n, nFFT, hop int) int {
	padded := n + 2*(nFFT/2)
	if padded < nFFT {
		return 1
	}
	return 1 + (padded-nFFT)/hop
}

// STFT computes the centred short-time Fourier transform of x using a Hann
// window. The signal is zero padded by nFFT/2 on both sides, so frame t is
// centred on sample t*hop.
func STFT(x []float64, nFFT, hop int) *Spectrogram {
	if nFFT <= 0 {
		nFFT = DefaultNFFT
	}
	if hop <= 0 {
		hop = DefaultHop
	}

	pad := nFFT / 2
	window := HannWindow(nFFT)
	fft := fourier.NewFFT(nFFT)
	n := frameCount(len(x), nFFT, hop)

	frames := make([][]complex128, n)
	buf := make([]float64, nFFT)
	for t := 0; t < n; t++ {
		offset := t*hop - pad
		for i := 0; i < nFFT; i++ {
			j := offset + i
			if j < 0 || j >= len(x) {
				buf[i] = 0
				continue
			}
			buf[i] = x[j] * window[i]
		}
		frames[t] = fft.Coefficients(nil, buf)
	}

	return &Spectrogram{Frames: frames, NFFT: nFFT, Hop: hop, Length: len(x)}
}

// ISTFT inverts a spectrogram produced by STFT using windowed overlap-add.
// The output has length samples; use s.Length to recover the original size.
func ISTFT(s *Spectrogram, length int) []float64 {
	nFFT, hop := s.NFFT, s.Hop
	pad := nFFT / 2
	window := HannWindow(nFFT)
	fft := fourier.NewFFT(nFFT)

	total := nFFT + hop*(len(s.Frames)-1)
	if total < length+2*pad {
		total = length + 2*pad
	}
	y := make([]float64, total)
	norm := make([]float64, total)

	buf := make([]float64, nFFT)
	for t, frame := range s.Frames {
		fft.Sequence(buf, frame)
		offset := t * hop
		for i := 0; i < nFFT; i++ {
			// gonum's inverse is unnormalised.
			y[offset+i] += buf[i] / float64(nFFT) * window[i]
			norm[offset+i] += window[i] * window[i]
		}
	}

	out := make([]float64, length)
	for i := range out {
		j := i + pad
		if j >= total {
			break
		}
		if norm[j] > 1e-10 {
			out[i] = y[j] / norm[j]
		}
	}
	return out
}

// frame slices x into centred frames of frameLen samples with the given hop.
// When edge is true the signal is padded by repeating its boundary samples,
// otherwise with zeros.
func frame(x []float64, frameLen, hop int, edge bool) [][]float64 {
	pad := frameLen / 2
	padded := make([]float64, len(x)+2*pad)
	copy(padded[pad:], x)
	if edge && len(x) > 0 {
		for i := 0; i < pad; i++ {
			padded[i] = x[0]
			padded[len(padded)-1-i] = x[len(x)-1]
		}
	}

	n := frameCount(len(x), frameLen, hop)
	frames := make([][]float64, 0, n)
	for t := 0; t < n; t++ {
		start := t * hop
		end := start + frameLen
		if end > len(padded) {
			break
		}
		frames = append(frames, padded[start:end])
	}
	return frames
}
