package chop

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, sampleRate int, seconds, amp float64) []float64 {
	out := make([]float64, int(seconds*float64(sampleRate)))
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestExtractor_EmptySlice(t *testing.T) {
	b := NewExtractor().Extract(nil, 22050)

	assert.True(t, b.Empty)
	assert.Zero(t, b.RMS)
	assert.Zero(t, b.Centroid)
	assert.Zero(t, b.ZCR)
	assert.Equal(t, [ChromaBins]float64{}, b.Chroma)
	assert.Equal(t, [MFCCCoefficients]float64{}, b.MFCC)
	assert.Nil(t, b.DominantPC)
	assert.Empty(t, b.DominantNote)
	assert.Equal(t, Vector{}, b.Vector())
}

func TestExtractor_Tone(t *testing.T) {
	sr := 22050
	b := NewExtractor().Extract(sine(440, sr, 0.5, 0.5), sr)

	require.False(t, b.Empty)
	require.NotNil(t, b.DominantPC)
	assert.Equal(t, 9, *b.DominantPC)
	assert.Equal(t, "A", b.DominantNote)
	assert.InDelta(t, 0.5/math.Sqrt2, b.RMS, 0.05)
	assert.InDelta(t, 440, b.Centroid, 150)
	assert.Positive(t, b.ZCR)
}

func TestBundle_Vector(t *testing.T) {
	b := Bundle{RMS: 1, Centroid: 2, ZCR: 3}
	for i := range b.MFCC {
		b.MFCC[i] = float64(10 + i)
	}
	assert.Equal(t, Vector{1, 2, 3, 10, 11, 12, 13}, b.Vector())
}

func TestExtractor_Deterministic(t *testing.T) {
	sr := 22050
	x := sine(261.63, sr, 0.3, 0.4)
	e := NewExtractor()
	assert.Equal(t, e.Extract(x, sr), e.Extract(x, sr))
}
