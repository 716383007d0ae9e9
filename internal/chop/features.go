package chop

import (
	"github.com/maauso/chopper/internal/dsp"
)

const (
	// ChromaBins is the size of the pitch-class distribution.
	ChromaBins = dsp.PitchClasses
	// MFCCCoefficients is the number of timbre coefficients in a bundle.
	MFCCCoefficients = 13
	// VectorSize is the length of the clustering feature vector.
	VectorSize = 7
)

// NoteNames maps pitch classes to note names.
var NoteNames = [ChromaBins]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Vector is the clustering projection of a bundle:
// energy, spectral centroid, zero-crossing rate and the first four MFCCs.
type Vector [VectorSize]float64

// Bundle holds the time-averaged descriptors of a waveform slice.
type Bundle struct {
	RMS      float64                  `json:"rms"`
	Centroid float64                  `json:"centroid"`
	ZCR      float64                  `json:"zcr"`
	Chroma   [ChromaBins]float64      `json:"chroma_mean"`
	MFCC     [MFCCCoefficients]float64 `json:"mfcc_mean"`
	// DominantPC is the argmax of Chroma, nil when the slice was empty.
	DominantPC *int `json:"dominant_pc"`
	// DominantNote is the note name of DominantPC, empty when it is nil.
	DominantNote string `json:"dominant_note,omitempty"`
	// Empty reports that the slice had no samples and every value is zero.
	Empty bool `json:"-"`
}

// Vector projects the bundle onto the clustering features.
func (b Bundle) Vector() Vector {
	return Vector{b.RMS, b.Centroid, b.ZCR, b.MFCC[0], b.MFCC[1], b.MFCC[2], b.MFCC[3]}
}

// Extractor computes feature bundles for waveform slices.
// It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	nFFT  int
	hop   int
	nMels int
}

// NewExtractor returns an extractor with 2048-sample frames, a 512-sample hop and 128 mel bands.
func NewExtractor() *Extractor {
	return &Extractor{nFFT: dsp.DefaultNFFT, hop: dsp.DefaultHop, nMels: dsp.DefaultMels}
}

// Extract describes slice. A zero-length slice yields an all-zero bundle
// with Empty set and no dominant pitch class.
func (e *Extractor) Extract(slice []float64, sampleRate int) Bundle {
	if len(slice) == 0 || sampleRate <= 0 {
		return Bundle{Empty: true}
	}

	var b Bundle
	b.RMS = mean(dsp.FrameRMS(slice, e.nFFT, e.hop))
	b.ZCR = mean(dsp.FrameZCR(slice, e.nFFT, e.hop))

	spec := dsp.STFT(slice, e.nFFT, e.hop)
	b.Centroid = mean(dsp.SpectralCentroid(spec.Magnitude(1), sampleRate, e.nFFT))

	power := spec.Magnitude(2)
	copy(b.Chroma[:], dsp.MeanRows(dsp.Chroma(power, sampleRate, e.nFFT), ChromaBins))
	copy(b.MFCC[:], dsp.MeanRows(dsp.MFCC(power, sampleRate, e.nFFT, e.nMels, MFCCCoefficients), MFCCCoefficients))

	dom := argmax(b.Chroma[:])
	b.DominantPC = &dom
	b.DominantNote = NoteNames[dom]
	return b
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// argmax returns the index of the first maximum of v.
func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}
