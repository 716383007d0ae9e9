package dsp

import "math"

// DefaultMels is the number of mel bands used for MFCCs and onset strength.
const DefaultMels = 128

// Slaney mel scale constants: linear below 1 kHz, logarithmic above.
const (
	melFSp       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27.0

// HzToMel converts a frequency to the Slaney mel scale.
func HzToMel(hz float64) float64 {
	if hz >= melMinLogHz {
		return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
	}
	return hz / melFSp
}

// MelToHz converts a Slaney mel value back to Hz.
func MelToHz(mel float64) float64 {
	if mel >= melMinLogMel {
		return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
	}
	return mel * melFSp
}

// MelFilterbank builds an nMels x (nFFT/2+1) matrix of triangular filters
// spanning 0 Hz to Nyquist, area normalised (Slaney style).
func MelFilterbank(sampleRate, nFFT, nMels int) [][]float64 {
	fftFreqs := FFTFrequencies(sampleRate, nFFT)

	maxMel := HzToMel(float64(sampleRate) / 2)
	melF := make([]float64, nMels+2)
	for i := range melF {
		melF[i] = MelToHz(maxMel * float64(i) / float64(nMels+1))
	}

	weights := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		row := make([]float64, len(fftFreqs))
		lowerDiff := melF[m+1] - melF[m]
		upperDiff := melF[m+2] - melF[m+1]
		enorm := 2.0 / (melF[m+2] - melF[m])
		for k, f := range fftFreqs {
			lower := (f - melF[m]) / lowerDiff
			upper := (melF[m+2] - f) / upperDiff
			w := math.Min(lower, upper)
			if w > 0 {
				row[k] = w * enorm
			}
		}
		weights[m] = row
	}
	return weights
}

// applyFilterbank projects each spectral frame onto the filterbank: out[t][m] = sum_k fb[m][k]*spec[t][k].
func applyFilterbank(spec [][]float64, fb [][]float64) [][]float64 {
	out := make([][]float64, len(spec))
	for t, frame := range spec {
		row := make([]float64, len(fb))
		for m, filter := range fb {
			var sum float64
			for k, w := range filter {
				if w != 0 {
					sum += w * frame[k]
				}
			}
			row[m] = sum
		}
		out[t] = row
	}
	return out
}

// PowerToDB converts a power spectrogram to decibels relative to 1.0, in
// place, flooring at 1e-10 and clipping everything more than topDB below the
// global maximum. A non-positive topDB disables clipping.
func PowerToDB(spec [][]float64, topDB float64) [][]float64 {
	maxDB := math.Inf(-1)
	for _, row := range spec {
		for i, v := range row {
			db := 10 * math.Log10(math.Max(v, 1e-10))
			row[i] = db
			if db > maxDB {
				maxDB = db
			}
		}
	}
	if topDB > 0 {
		floor := maxDB - topDB
		for _, row := range spec {
			for i, v := range row {
				if v < floor {
					row[i] = floor
				}
			}
		}
	}
	return spec
}

// MelSpectrogram returns the mel-band power spectrogram of x as [frame][band].
func MelSpectrogram(x []float64, sampleRate, nFFT, hop, nMels int) [][]float64 {
	power := STFT(x, nFFT, hop).Magnitude(2)
	return applyFilterbank(power, MelFilterbank(sampleRate, nFFT, nMels))
}
