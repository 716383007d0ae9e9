package dsp

import "math"

// PeakPickParams controls onset peak picking. Window sizes are in frames.
type PeakPickParams struct {
	PreMax  int
	PostMax int
	PreAvg  int
	PostAvg int
	Delta   float64
	Wait    int
}

// DefaultPeakPickParams mirrors the chopping defaults: 7-frame windows,
// a 0.25 threshold over the local mean and no minimum spacing.
func DefaultPeakPickParams() PeakPickParams {
	return PeakPickParams{PreMax: 7, PostMax: 7, PreAvg: 7, PostAvg: 7, Delta: 0.25, Wait: 0}
}

// OnsetStrength computes a spectral-flux onset envelope: the mean over mel
// bands of the positive first difference of the log-power mel spectrogram.
// The envelope has one value per STFT frame and is delayed so that values
// align with the frame in which the energy increase is observed.
func OnsetStrength(x []float64, sampleRate, nFFT, hop int) []float64 {
	if nFFT <= 0 {
		nFFT = DefaultNFFT
	}
	if hop <= 0 {
		hop = DefaultHop
	}
	const lag = 1

	mel := PowerToDB(MelSpectrogram(x, sampleRate, nFFT, hop, DefaultMels), 80)
	frames := len(mel)

	flux := make([]float64, 0, frames)
	for t := lag; t < frames; t++ {
		var sum float64
		for m := range mel[t] {
			if d := mel[t][m] - mel[t-lag][m]; d > 0 {
				sum += d
			}
		}
		flux = append(flux, sum/float64(len(mel[t])))
	}

	// Compensate for the lag and the centred frames, then trim to the frame count.
	pad := lag + nFFT/(2*hop)
	env := make([]float64, frames)
	for i, v := range flux {
		j := i + pad
		if j >= frames {
			break
		}
		env[j] = v
	}
	return env
}

// NormalizeEnvelope shifts env to a zero minimum and scales it to a unit maximum, in place.
func NormalizeEnvelope(env []float64) []float64 {
	if len(env) == 0 {
		return env
	}
	lo, hi := env[0], env[0]
	for _, v := range env {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	for i := range env {
		env[i] = (env[i] - lo) / (hi - lo + tiny)
	}
	return env
}

// PeakPick returns the indices n where x[n] is the maximum of x[n-PreMax:n+PostMax],
// at least Delta above the mean of x[n-PreAvg:n+PostAvg], and more than Wait
// frames after the previous peak. Windows are clipped at the signal edges.
func PeakPick(x []float64, p PeakPickParams) []int {
	var peaks []int
	last := math.MinInt / 2
	for n := range x {
		lo := max(0, n-p.PreMax)
		hi := min(len(x), n+max(1, p.PostMax))
		isMax := true
		for i := lo; i < hi; i++ {
			if x[i] > x[n] {
				isMax = false
				break
			}
		}
		if !isMax {
			continue
		}

		lo = max(0, n-p.PreAvg)
		hi = min(len(x), n+max(1, p.PostAvg))
		var sum float64
		for i := lo; i < hi; i++ {
			sum += x[i]
		}
		if x[n] < sum/float64(hi-lo)+p.Delta {
			continue
		}

		if n-last > p.Wait {
			peaks = append(peaks, n)
			last = n
		}
	}
	return peaks
}

// Backtrack moves each onset frame back to the nearest preceding local
// minimum of energy. Frame 0 always counts as a minimum.
func Backtrack(onsets []int, energy []float64) []int {
	minima := []int{0}
	for i := 1; i+1 < len(energy); i++ {
		if energy[i] <= energy[i-1] && energy[i] < energy[i+1] {
			minima = append(minima, i)
		}
	}

	out := make([]int, len(onsets))
	for i, onset := range onsets {
		best := 0
		for _, m := range minima {
			if m > onset {
				break
			}
			best = m
		}
		out[i] = best
	}
	return out
}

// DetectOnsets returns onset times in seconds, in ascending order.
// A silent or constant signal has no onsets.
func DetectOnsets(x []float64, sampleRate, hop int, p PeakPickParams, backtrack bool) []float64 {
	if hop <= 0 {
		hop = DefaultHop
	}
	env := OnsetStrength(x, sampleRate, DefaultNFFT, hop)

	flat := true
	for _, v := range env {
		if v != 0 {
			flat = false
			break
		}
	}
	if flat {
		return []float64{}
	}

	env = NormalizeEnvelope(env)
	frames := PeakPick(env, p)
	if backtrack {
		frames = Backtrack(frames, env)
	}

	times := make([]float64, len(frames))
	for i, f := range frames {
		times[i] = float64(f*hop) / float64(sampleRate)
	}
	return times
}
