package chop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentOnsets_EvenlySpaced(t *testing.T) {
	onsets := make([]float64, 10)
	for i := range onsets {
		onsets[i] = float64(i)
	}

	got := SegmentOnsets(onsets, 11, 0.2, 1.8)

	require.Len(t, got, 10)
	for i := 0; i < 9; i++ {
		assert.Equal(t, Interval{Start: float64(i), End: float64(i + 1)}, got[i])
	}
	assert.Equal(t, 9.0, got[9].Start)
	assert.InDelta(t, 10.8, got[9].End, 1e-12)
}

func TestSegmentOnsets_NoOnsets(t *testing.T) {
	got := SegmentOnsets(nil, 5, 0.2, 1.8)
	assert.Equal(t, []Interval{{Start: 0, End: 5}}, got)

	got = SegmentOnsets([]float64{}, 0, 0.2, 1.8)
	require.Len(t, got, 1)
	assert.Greater(t, got[0].End, got[0].Start)
}

func TestSegmentOnsets_CloseOnsetExtends(t *testing.T) {
	got := SegmentOnsets([]float64{1.0, 1.1, 3.0}, 6, 0.2, 1.8)

	require.Len(t, got, 3)
	assert.InDelta(t, 2.8, got[0].End, 1e-12, "gap below min duration uses the default length")
	assert.Equal(t, 3.0, got[1].End)
	assert.InDelta(t, 4.8, got[2].End, 1e-12)
	// The extended first chop overlaps the second one.
	assert.Greater(t, got[0].End, got[1].Start)
}

func TestSegmentOnsets_AlwaysPositiveDuration(t *testing.T) {
	cases := [][]float64{
		{0, 0, 0},
		{2, 1, 0.5},
		{0.1, 0.15, 0.3, 0.3, 10},
	}
	for _, onsets := range cases {
		for _, defaultLength := range []float64{1.8, 0, -1} {
			got := SegmentOnsets(onsets, 3, 0.2, defaultLength)
			require.Len(t, got, len(onsets))
			for i, iv := range got {
				assert.Greater(t, iv.End, iv.Start, "onsets %v default %v interval %d", onsets, defaultLength, i)
				assert.Equal(t, onsets[i], iv.Start)
			}
		}
	}
}

func TestSegment_NameAndDescriptor(t *testing.T) {
	s := Segment{
		Interval: Interval{Start: 1, End: 2.5},
		Name:     chopName(3),
		Bundle:   Bundle{RMS: 0.12345},
		Cluster:  2,
	}
	assert.Equal(t, "harmonic_Chop_003", s.Name)
	assert.Equal(t, "Harmonic | RMS=0.1235 | Dur=1.50 | Cluster=2", s.Descriptor())
}
