package dsp

import "math"

// DefaultKernel is the median filter length, in frames and in bins, used by HPSS.
const DefaultKernel = 31

// HPSS separates x into harmonic and percussive components by median
// filtering the magnitude spectrogram along time (harmonic) and frequency
// (percussive) and applying soft masks with power 2 to the complex spectrum.
// Both outputs have the same length as x.
func HPSS(x []float64, nFFT, hop, kernel int) (harmonic, percussive []float64) {
	if len(x) == 0 {
		return []float64{}, []float64{}
	}
	if kernel <= 0 {
		kernel = DefaultKernel
	}

	spec := STFT(x, nFFT, hop)
	mag := spec.Magnitude(1)
	frames, bins := len(mag), spec.Bins()

	h := make([][]float64, frames)
	p := make([][]float64, frames)
	for t := range h {
		h[t] = make([]float64, bins)
		p[t] = make([]float64, bins)
	}

	window := make([]float64, kernel)
	half := kernel / 2

	// Harmonic: median across neighbouring frames for each bin.
	for k := 0; k < bins; k++ {
		for t := 0; t < frames; t++ {
			for i := 0; i < kernel; i++ {
				window[i] = mag[reflect(t+i-half, frames)][k]
			}
			h[t][k] = median(window)
		}
	}

	// Percussive: median across neighbouring bins for each frame.
	for t := 0; t < frames; t++ {
		for k := 0; k < bins; k++ {
			for i := 0; i < kernel; i++ {
				window[i] = mag[t][reflect(k+i-half, bins)]
			}
			p[t][k] = median(window)
		}
	}

	harmSpec := &Spectrogram{NFFT: spec.NFFT, Hop: spec.Hop, Length: spec.Length, Frames: make([][]complex128, frames)}
	percSpec := &Spectrogram{NFFT: spec.NFFT, Hop: spec.Hop, Length: spec.Length, Frames: make([][]complex128, frames)}
	for t, frame := range spec.Frames {
		hf := make([]complex128, bins)
		pf := make([]complex128, bins)
		for k, c := range frame {
			mh, mp := softMasks(h[t][k], p[t][k])
			hf[k] = c * complex(mh, 0)
			pf[k] = c * complex(mp, 0)
		}
		harmSpec.Frames[t] = hf
		percSpec.Frames[t] = pf
	}

	return ISTFT(harmSpec, len(x)), ISTFT(percSpec, len(x))
}

// softMasks returns the Wiener-style masks h²/(h²+p²) and p²/(h²+p²).
// When both references are numerically zero both masks are zero.
func softMasks(h, p float64) (float64, float64) {
	z := math.Max(h, p)
	if z < tiny {
		return 0, 0
	}
	mh := (h / z) * (h / z)
	mp := (p / z) * (p / z)
	return mh / (mh + mp), mp / (mh + mp)
}

// reflect maps an out-of-range index back into [0, n) by half-sample symmetric reflection.
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}

// median returns the median of v, reordering v in place.
func median(v []float64) float64 {
	n := len(v)
	if n == 0 {
		return 0
	}
	mid := n / 2
	m := quickselect(v, mid)
	if n%2 == 1 {
		return m
	}
	// Even length: average with the largest value of the lower half.
	lower := v[0]
	for _, x := range v[:mid] {
		if x > lower {
			lower = x
		}
	}
	return (lower + m) / 2
}

// quickselect partially sorts v so that v[k] holds the k-th smallest element.
func quickselect(v []float64, k int) float64 {
	lo, hi := 0, len(v)-1
	for lo < hi {
		pivot := v[(lo+hi)/2]
		i, j := lo, hi
		for i <= j {
			for v[i] < pivot {
				i++
			}
			for v[j] > pivot {
				j--
			}
			if i <= j {
				v[i], v[j] = v[j], v[i]
				i++
				j--
			}
		}
		switch {
		case k <= j:
			hi = j
		case k >= i:
			lo = i
		default:
			return v[k]
		}
	}
	return v[k]
}
