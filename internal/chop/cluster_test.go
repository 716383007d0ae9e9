package chop

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blobs() []Vector {
	centres := []Vector{
		{0.1, 500, 0.01, -300, 50, 10, 5},
		{0.5, 3000, 0.20, -100, 20, -5, 0},
		{0.9, 8000, 0.50, 50, -30, 0, -10},
	}
	var out []Vector
	for i := 0; i < 12; i++ {
		v := centres[i%3]
		for d := range v {
			v[d] += float64(i) * 1e-3
		}
		out = append(out, v)
	}
	return out
}

func TestAssign_Empty(t *testing.T) {
	a := NewAssigner().Assign(nil, 3)
	assert.Empty(t, a.Labels)
	assert.NotNil(t, a.Labels)
}

func TestAssign_SingleGroup(t *testing.T) {
	vectors := blobs()

	for _, k := range []int{0, 1} {
		a := NewAssigner().Assign(vectors, k)
		require.Len(t, a.Labels, len(vectors))
		assert.Equal(t, ClusterStatusSingle, a.Status)
		for _, l := range a.Labels {
			assert.Equal(t, 0, l)
		}
	}

	one := NewAssigner().Assign(vectors[:1], 6)
	assert.Equal(t, []int{0}, one.Labels)
}

func TestAssign_SeparatesBlobs(t *testing.T) {
	vectors := blobs()
	a := NewAssigner().Assign(vectors, 3)

	require.Len(t, a.Labels, len(vectors))
	assert.Equal(t, ClusterStatusClustered, a.Status)
	assert.Equal(t, 3, a.K)
	for i, l := range a.Labels {
		assert.GreaterOrEqual(t, l, 0)
		assert.Less(t, l, 3)
		assert.Equal(t, a.Labels[i%3], l, "vector %d", i)
	}
	assert.ElementsMatch(t, []int{0, 1, 2}, a.Labels[:3])
}

func TestAssign_LabelsWithinRange(t *testing.T) {
	vectors := blobs()
	for _, k := range []int{2, 4, 6, 12, 50} {
		a := NewAssigner().Assign(vectors, k)
		require.Len(t, a.Labels, len(vectors))
		limit := min(k, len(vectors))
		for _, l := range a.Labels {
			assert.GreaterOrEqual(t, l, 0)
			assert.Less(t, l, limit)
		}
	}
}

func TestAssign_Deterministic(t *testing.T) {
	vectors := blobs()
	first := NewAssigner().Assign(vectors, 4)
	second := NewAssigner().Assign(vectors, 4)
	assert.Equal(t, first, second)
}

func TestAssign_IdenticalVectors(t *testing.T) {
	v := Vector{0.2, 1000, 0.1, -200, 10, 3, 1}
	a := NewAssigner().Assign([]Vector{v, v, v, v}, 3)

	assert.Equal(t, []int{0, 0, 0, 0}, a.Labels)
	assert.Equal(t, ClusterStatusSingle, a.Status)
}

func TestAssign_FewerDistinctPointsThanK(t *testing.T) {
	v1 := Vector{0.2, 1000, 0.1, -200, 10, 3, 1}
	v2 := Vector{0.8, 6000, 0.4, -20, 1, 0, 9}
	a := NewAssigner().Assign([]Vector{v1, v2, v1, v2, v1}, 4)

	assert.Equal(t, ClusterStatusClustered, a.Status)
	assert.Equal(t, 2, a.K)
	assert.Equal(t, []int{0, 1, 0, 1, 0}, a.Labels)
}

func TestAssign_NonFiniteDegrades(t *testing.T) {
	vectors := blobs()
	vectors[4][1] = math.NaN()

	a := NewAssigner().Assign(vectors, 3)

	assert.Equal(t, ClusterStatusDegraded, a.Status)
	assert.NotEmpty(t, a.Reason)
	require.Len(t, a.Labels, len(vectors))
	for _, l := range a.Labels {
		assert.Equal(t, 0, l)
	}
}

func TestStandardize_ZeroVarianceColumn(t *testing.T) {
	points := [][]float64{{1, 5}, {3, 5}}
	standardize(points)
	assert.Equal(t, [][]float64{{-1, 0}, {1, 0}}, points)
}
