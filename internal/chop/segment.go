// Package chop turns a track into a bounded set of representative chops.
//
// The pipeline cuts the harmonic component of a track at detected onsets,
// describes every cut with timbre features, groups similar cuts with k-means
// and keeps the most energetic members of each group. Every cut is persisted;
// only the representatives are returned to the caller.
package chop

import "fmt"

// Interval is a half-open time range [Start, End) in seconds.
type Interval struct {
	Start float64
	End   float64
}

// Duration returns End - Start.
func (iv Interval) Duration() float64 {
	return iv.End - iv.Start
}

// Segment is one chop of a track.
// It is created by the segmenter, enriched by feature extraction and
// clustering, and read-only afterwards.
type Segment struct {
	Interval

	// Index is the position in onset order.
	Index int
	// Name is the human readable chop name, e.g. harmonic_Chop_003.
	Name string
	// Bundle holds the display descriptors.
	Bundle Bundle
	// Vector is the clustering projection of Bundle.
	Vector Vector
	// Cluster is the assigned group, or Unclustered before clustering runs.
	Cluster int
	// ID is the storage identifier, set once the chop has been persisted.
	ID string
}

// Unclustered marks a segment whose cluster label has not been assigned yet.
const Unclustered = -1

// Descriptor returns a one-line summary used in metadata and listings.
func (s *Segment) Descriptor() string {
	return fmt.Sprintf("Harmonic | RMS=%.4f | Dur=%.2f | Cluster=%d", s.Bundle.RMS, s.Duration(), s.Cluster)
}

// chopName formats the name of the i-th chop.
func chopName(i int) string {
	return fmt.Sprintf("harmonic_Chop_%03d", i)
}

// SegmentOnsets converts onset times into chop intervals.
//
// For onset i of n the chop starts at the onset and ends at the next onset.
// When the next onset is closer than minDuration, or for the last onset, the
// chop is extended to start+defaultLength instead. A chop that would end at
// or before its start is given minDuration. With no onsets the whole track
// becomes a single chop; an empty track still yields a chop of minDuration.
//
// Extended chops are not clipped against later onsets and may overlap them.
func SegmentOnsets(onsets []float64, trackDuration, minDuration, defaultLength float64) []Interval {
	if len(onsets) == 0 {
		end := trackDuration
		if end <= 0 {
			end = minDuration
		}
		return []Interval{{Start: 0, End: end}}
	}

	n := len(onsets)
	out := make([]Interval, n)
	for i, start := range onsets {
		var end float64
		if i < n-1 {
			end = onsets[i+1]
			if end-start < minDuration {
				end = start + defaultLength
			}
		} else {
			end = start + defaultLength
		}
		if end <= start {
			end = start + minDuration
		}
		out[i] = Interval{Start: start, End: end}
	}
	return out
}
