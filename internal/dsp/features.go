package dsp

import (
	"math"
)

// PitchClasses is the number of semitone classes in a chroma vector.
const PitchClasses = 12

// zcrThreshold treats samples with a smaller magnitude as exact zeros.
const zcrThreshold = 1e-10

// FrameRMS returns the root-mean-square amplitude of each centred frame.
func FrameRMS(x []float64, frameLen, hop int) []float64 {
	frames := frame(x, frameLen, hop, false)
	out := make([]float64, len(frames))
	for t, f := range frames {
		var sum float64
		for _, v := range f {
			sum += v * v
		}
		out[t] = math.Sqrt(sum / float64(len(f)))
	}
	return out
}

// FrameZCR returns the fraction of sign changes per centred frame.
// Frames are edge padded and non-negative values (including zero) count as positive.
func FrameZCR(x []float64, frameLen, hop int) []float64 {
	frames := frame(x, frameLen, hop, true)
	out := make([]float64, len(frames))
	for t, f := range frames {
		crossings := 0
		for i := 1; i < len(f); i++ {
			if signbit(f[i]) != signbit(f[i-1]) {
				crossings++
			}
		}
		out[t] = float64(crossings) / float64(len(f))
	}
	return out
}

func signbit(v float64) bool {
	if math.Abs(v) <= zcrThreshold {
		return false
	}
	return v < 0
}

// SpectralCentroid returns the magnitude-weighted mean frequency of each frame.
// Silent frames have a centroid of zero.
func SpectralCentroid(mag [][]float64, sampleRate, nFFT int) []float64 {
	freqs := FFTFrequencies(sampleRate, nFFT)
	out := make([]float64, len(mag))
	for t, frame := range mag {
		var num, den float64
		for k, m := range frame {
			num += freqs[k] * m
			den += m
		}
		if den > tiny {
			out[t] = num / den
		}
	}
	return out
}

// PitchClass maps a frequency to its semitone class, with C = 0 and A = 9.
func PitchClass(hz float64) int {
	midi := int(math.Round(12*math.Log2(hz/440.0))) + 69
	pc := midi % PitchClasses
	if pc < 0 {
		pc += PitchClasses
	}
	return pc
}

// Chroma folds each power spectral frame into 12 pitch classes and normalises
// every frame by its maximum. Bins below 20 Hz are ignored.
func Chroma(power [][]float64, sampleRate, nFFT int) [][]float64 {
	freqs := FFTFrequencies(sampleRate, nFFT)
	classes := make([]int, len(freqs))
	for k, f := range freqs {
		if f < 20 {
			classes[k] = -1
			continue
		}
		classes[k] = PitchClass(f)
	}

	out := make([][]float64, len(power))
	for t, frame := range power {
		row := make([]float64, PitchClasses)
		for k, p := range frame {
			if c := classes[k]; c >= 0 {
				row[c] += p
			}
		}
		var peak float64
		for _, v := range row {
			peak = math.Max(peak, v)
		}
		if peak > tiny {
			for i := range row {
				row[i] /= peak
			}
		} else {
			for i := range row {
				row[i] = 0
			}
		}
		out[t] = row
	}
	return out
}

// MFCC computes nMFCC cepstral coefficients per frame from a power spectrogram:
// mel filterbank, decibel scaling with an 80 dB floor, then an orthonormal DCT-II.
func MFCC(power [][]float64, sampleRate, nFFT, nMels, nMFCC int) [][]float64 {
	melSpec := PowerToDB(applyFilterbank(power, MelFilterbank(sampleRate, nFFT, nMels)), 80)

	out := make([][]float64, len(melSpec))
	for t, row := range melSpec {
		out[t] = dctII(row, nMFCC)
	}
	return out
}

// dctII returns the first n coefficients of the orthonormal type-II DCT of x.
func dctII(x []float64, n int) []float64 {
	size := len(x)
	if n > size {
		n = size
	}
	out := make([]float64, n)
	if size == 0 {
		return out
	}
	for k := 0; k < n; k++ {
		var sum float64
		for i, v := range x {
			sum += v * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(size)))
		}
		scale := math.Sqrt(2 / float64(size))
		if k == 0 {
			scale = math.Sqrt(1 / float64(size))
		}
		out[k] = sum * scale
	}
	return out
}

// MeanRows averages a [frame][dim] matrix over frames.
func MeanRows(m [][]float64, dims int) []float64 {
	out := make([]float64, dims)
	if len(m) == 0 {
		return out
	}
	for _, row := range m {
		for i := 0; i < dims && i < len(row); i++ {
			out[i] += row[i]
		}
	}
	for i := range out {
		out[i] /= float64(len(m))
	}
	return out
}
