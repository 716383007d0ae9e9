package chop

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ClusterStatus reports how an Assignment was produced.
type ClusterStatus string

const (
	// ClusterStatusClustered means k-means ran with k >= 2.
	ClusterStatusClustered ClusterStatus = "clustered"
	// ClusterStatusSingle means k collapsed to one, so every label is 0.
	ClusterStatusSingle ClusterStatus = "single"
	// ClusterStatusDegraded means grouping failed and every label was set to 0.
	ClusterStatusDegraded ClusterStatus = "degraded"
)

// Assignment is the result of clustering a batch of vectors.
type Assignment struct {
	// Labels holds one label per input vector, aligned by position.
	Labels []int
	// K is the number of groups actually used.
	K      int
	Status ClusterStatus
	// Reason explains a single or degraded status.
	Reason string
}

// Assigner groups feature vectors with k-means on standardized features.
type Assigner struct {
	seed      uint64
	restarts  int
	maxIter   int
	tolerance float64
}

// AssignerOption configures an Assigner.
type AssignerOption func(*Assigner)

// WithSeed sets the random seed used for centroid initialisation.
func WithSeed(seed uint64) AssignerOption {
	return func(a *Assigner) {
		a.seed = seed
	}
}

// WithRestarts sets how many initialisations are tried; the lowest inertia wins.
func WithRestarts(n int) AssignerOption {
	return func(a *Assigner) {
		if n > 0 {
			a.restarts = n
		}
	}
}

// NewAssigner creates an Assigner with seed 0, 10 restarts, at most 300
// iterations per run and a relative tolerance of 1e-4.
func NewAssigner(opts ...AssignerOption) *Assigner {
	a := &Assigner{
		seed:      0,
		restarts:  10,
		maxIter:   300,
		tolerance: 1e-4,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assign partitions vectors into at most requestedK groups.
// It never fails: any problem collapses the batch to a single group and is
// reported through the returned status.
func (a *Assigner) Assign(vectors []Vector, requestedK int) Assignment {
	n := len(vectors)
	if n == 0 {
		return Assignment{Labels: []int{}, K: 0, Status: ClusterStatusSingle, Reason: "no vectors"}
	}

	k := min(requestedK, n)
	if k <= 1 {
		return single(n, ClusterStatusSingle, fmt.Sprintf("k=%d", k))
	}

	points := make([][]float64, n)
	for i, v := range vectors {
		for _, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return single(n, ClusterStatusDegraded, fmt.Sprintf("non-finite feature in vector %d", i))
			}
		}
		points[i] = append([]float64(nil), v[:]...)
	}
	standardize(points)

	if d := distinct(points); d < k {
		k = d
		if k <= 1 {
			return single(n, ClusterStatusSingle, "all vectors are identical")
		}
	}

	labels, err := a.kmeans(points, k)
	if err != nil {
		return single(n, ClusterStatusDegraded, err.Error())
	}
	used := 0
	for _, l := range labels {
		used = max(used, l+1)
	}
	return Assignment{Labels: labels, K: used, Status: ClusterStatusClustered}
}

func single(n int, status ClusterStatus, reason string) Assignment {
	return Assignment{Labels: make([]int, n), K: 1, Status: status, Reason: reason}
}

// standardize scales every column to zero mean and unit population variance.
// Columns with zero variance are only centred.
func standardize(points [][]float64) {
	dims := len(points[0])
	col := make([]float64, len(points))
	for d := 0; d < dims; d++ {
		for i, p := range points {
			col[i] = p[d]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		scale := math.Sqrt(variance)
		if scale == 0 || math.IsNaN(scale) {
			scale = 1
		}
		for _, p := range points {
			p[d] = (p[d] - mean) / scale
		}
	}
}

func distinct(points [][]float64) int {
	count := 0
	for i, p := range points {
		dup := false
		for _, q := range points[:i] {
			if floats.Equal(p, q) {
				dup = true
				break
			}
		}
		if !dup {
			count++
		}
	}
	return count
}

// kmeans runs Lloyd's algorithm from several k-means++ initialisations and
// returns the labels of the run with the lowest inertia, renumbered in order
// of first appearance.
func (a *Assigner) kmeans(points [][]float64, k int) ([]int, error) {
	rng := rand.New(rand.NewPCG(a.seed, a.seed))
	tol := a.tolerance * meanVariance(points)

	var (
		best        []int
		bestInertia = math.Inf(1)
	)
	for r := 0; r < a.restarts; r++ {
		labels, inertia := a.lloyd(points, seedCenters(points, k, rng), tol)
		if math.IsNaN(inertia) {
			continue
		}
		if inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
	}
	if best == nil {
		return nil, fmt.Errorf("k-means did not produce a finite solution for k=%d", k)
	}
	return renumber(best), nil
}

// seedCenters picks k initial centres with k-means++: the first uniformly,
// each next one with probability proportional to its squared distance from
// the nearest centre chosen so far.
func seedCenters(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, clone(points[rng.IntN(len(points))]))

	dist := make([]float64, len(points))
	for i, p := range points {
		dist[i] = sqDist(p, centers[0])
	}
	for len(centers) < k {
		total := floats.Sum(dist)
		next := 0
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target <= 0 && d > 0 {
					next = i
					break
				}
				next = i
			}
		} else {
			next = rng.IntN(len(points))
		}
		centers = append(centers, clone(points[next]))
		for i, p := range points {
			dist[i] = math.Min(dist[i], sqDist(p, centers[len(centers)-1]))
		}
	}
	return centers
}

func (a *Assigner) lloyd(points [][]float64, centers [][]float64, tol float64) ([]int, float64) {
	k := len(centers)
	dims := len(points[0])
	labels := make([]int, len(points))
	counts := make([]int, k)

	for iter := 0; iter < a.maxIter; iter++ {
		assignLabels(points, centers, labels)

		next := make([][]float64, k)
		for c := range next {
			next[c] = make([]float64, dims)
		}
		clear(counts)
		for i, p := range points {
			floats.Add(next[labels[i]], p)
			counts[labels[i]]++
		}
		for c := range next {
			if counts[c] == 0 {
				// Re-seed an empty cluster at the point farthest from its centre.
				next[c] = clone(points[farthest(points, centers, labels)])
				continue
			}
			floats.Scale(1/float64(counts[c]), next[c])
		}

		var shift float64
		for c := range centers {
			shift += sqDist(centers[c], next[c])
		}
		centers = next
		if shift <= tol {
			break
		}
	}

	inertia := assignLabels(points, centers, labels)
	return labels, inertia
}

// assignLabels sets every label to its nearest centre and returns the inertia.
func assignLabels(points, centers [][]float64, labels []int) float64 {
	var inertia float64
	for i, p := range points {
		best, bestDist := 0, math.Inf(1)
		for c, center := range centers {
			if d := sqDist(p, center); d < bestDist {
				best, bestDist = c, d
			}
		}
		labels[i] = best
		inertia += bestDist
	}
	return inertia
}

func farthest(points, centers [][]float64, labels []int) int {
	idx, far := 0, -1.0
	for i, p := range points {
		if d := sqDist(p, centers[labels[i]]); d > far {
			idx, far = i, d
		}
	}
	return idx
}

// renumber maps labels to 0..k-1 in order of first appearance.
func renumber(labels []int) []int {
	mapping := make(map[int]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		m, ok := mapping[l]
		if !ok {
			m = len(mapping)
			mapping[l] = m
		}
		out[i] = m
	}
	return out
}

func meanVariance(points [][]float64) float64 {
	dims := len(points[0])
	col := make([]float64, len(points))
	var sum float64
	for d := 0; d < dims; d++ {
		for i, p := range points {
			col[i] = p[d]
		}
		_, v := stat.PopMeanVariance(col, nil)
		sum += v
	}
	return sum / float64(dims)
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func clone(p []float64) []float64 {
	return append([]float64(nil), p...)
}
