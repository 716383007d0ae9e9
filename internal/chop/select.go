package chop

import (
	"cmp"
	"slices"
)

// Candidate is the selector's view of a segment.
type Candidate struct {
	Index   int
	Cluster int
	Energy  float64
}

// Pick is one chosen segment with its provenance.
type Pick struct {
	Index   int `json:"index"`
	Cluster int `json:"cluster"`
	// Rank is the position within its cluster by descending energy, starting at 0.
	Rank int `json:"rank"`
}

// Selection is the bounded representative subset of a batch of segments.
type Selection struct {
	// Indices lists the chosen segment indices in output order.
	Indices []int `json:"indices"`
	Picks   []Pick `json:"picks"`
	// Slots maps each cluster label to the number of slots it was allotted.
	// It is empty when no filtering was needed.
	Slots map[int]int `json:"slots"`
	// Clusters is the number of distinct labels present.
	Clusters int `json:"clusters"`
	// Total is the number of candidates considered.
	Total int `json:"total"`
}

// Select picks at most maxCount candidates balanced across clusters.
//
// When there are no more candidates than maxCount all of them are returned
// in input order. Otherwise every cluster, in ascending label order, gets
// max(1, maxCount/C) slots, with the remainder going one each to the first
// clusters, and fills them with its most energetic members. Slots a cluster
// cannot fill are handed round-robin to clusters that still have members, so
// the result always holds min(maxCount, len(items)) distinct indices.
func Select(items []Candidate, maxCount int) Selection {
	groups, order := groupByCluster(items)
	sel := Selection{
		Clusters: len(order),
		Total:    len(items),
		Slots:    map[int]int{},
	}

	if maxCount < 0 {
		maxCount = 0
	}
	if len(items) <= maxCount {
		sel.Indices = make([]int, len(items))
		sel.Picks = make([]Pick, len(items))
		for i, it := range items {
			sel.Indices[i] = it.Index
			sel.Picks[i] = Pick{Index: it.Index, Cluster: it.Cluster, Rank: rankOf(groups[it.Cluster], it.Index)}
		}
		return sel
	}

	c := len(order)
	base := max(1, maxCount/c)
	remainder := maxCount - base*c
	for i, label := range order {
		slots := base
		if i < remainder {
			slots++
		}
		sel.Slots[label] = slots
	}

	taken := make(map[int]int, c)
	for _, label := range order {
		taken[label] = min(sel.Slots[label], len(groups[label]))
	}

	// Redistribute slots that small clusters could not use.
	used := 0
	for _, n := range taken {
		used += n
	}
	for shortfall := maxCount - used; shortfall > 0; {
		progressed := false
		for _, label := range order {
			if shortfall == 0 {
				break
			}
			if taken[label] < len(groups[label]) {
				taken[label]++
				sel.Slots[label]++
				shortfall--
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	for _, label := range order {
		for rank, it := range groups[label][:taken[label]] {
			sel.Picks = append(sel.Picks, Pick{Index: it.Index, Cluster: label, Rank: rank})
		}
	}
	if len(sel.Picks) > maxCount {
		sel.Picks = sel.Picks[:maxCount]
	}
	sel.Indices = make([]int, len(sel.Picks))
	for i, p := range sel.Picks {
		sel.Indices[i] = p.Index
	}
	return sel
}

// groupByCluster buckets items by label, each bucket sorted by descending
// energy with ties broken by ascending index, and returns the labels in
// ascending order.
func groupByCluster(items []Candidate) (map[int][]Candidate, []int) {
	groups := make(map[int][]Candidate)
	for _, it := range items {
		groups[it.Cluster] = append(groups[it.Cluster], it)
	}
	order := make([]int, 0, len(groups))
	for label, g := range groups {
		slices.SortStableFunc(g, func(a, b Candidate) int {
			if c := cmp.Compare(b.Energy, a.Energy); c != 0 {
				return c
			}
			return cmp.Compare(a.Index, b.Index)
		})
		order = append(order, label)
	}
	slices.Sort(order)
	return groups, order
}

func rankOf(group []Candidate, index int) int {
	for i, it := range group {
		if it.Index == index {
			return i
		}
	}
	return -1
}
