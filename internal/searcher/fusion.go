package searcher

import (
	"sort"

	"github.com/osgrep/osgrep/internal/store"
)

// fusedKey identifies a row for fusion/dedup purposes (spec §4.7 step 3:
// "keyed by (path, start_line)").
type fusedKey struct {
	path      string
	startLine int
}

// fusedCandidate is one row after RRF fusion, carrying the summed score and
// the first-seen row content (spec §4.7: "the first occurrence of a key
// supplies the record").
type fusedCandidate struct {
	key fusedKey
	row store.Row
	rrf float64
}

// fuseRRF combines two ranked result lists with reciprocal rank fusion:
// rank i (1-indexed) in a list contributes 1/(k+i) to that row's score,
// summed across lists. Fusion is commutative in the sense the teacher's
// fusion_test.go pins: swapping list order does not change the fused keys
// or their summed scores, only which list supplied the first-seen row.
func fuseRRF(k int, lists ...[]store.Row) []fusedCandidate {
	byKey := make(map[fusedKey]*fusedCandidate)
	order := make([]fusedKey, 0)

	for _, list := range lists {
		for rank, row := range list {
			key := fusedKey{path: row.Path, startLine: row.StartLine}
			score := 1.0 / float64(k+rank+1)

			fc, ok := byKey[key]
			if !ok {
				fc = &fusedCandidate{key: key, row: row}
				byKey[key] = fc
				order = append(order, key)
			}
			fc.rrf += score
		}
	}

	out := make([]fusedCandidate, len(order))
	for i, key := range order {
		out[i] = *byKey[key]
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].rrf > out[j].rrf })
	return out
}

// maxRRF returns the largest fused score in candidates, used to normalize
// every candidate's RRF score into [0,1] (spec §4.7 step 4). Returns an
// error-free 0 for an empty slice so normalization callers can skip safely.
func maxRRF(candidates []fusedCandidate) float64 {
	var max float64
	for _, c := range candidates {
		if c.rrf > max {
			max = c.rrf
		}
	}
	return max
}

// rrfNorm returns c's RRF score divided by max, or 0 if max is 0.
func rrfNorm(c fusedCandidate, max float64) float64 {
	if max == 0 {
		return 0
	}
	return c.rrf / max
}
