// Package searcher implements the hybrid retrieval pipeline of spec §4.7:
// parallel dense-vector and full-text candidate fan-out, reciprocal-rank
// fusion, a neural rerank pass over the fused head, and heuristic score
// boosts, grounded in the teacher's internal/search package (fusion.go's
// RRFFusion, reranker.go's blend weights, patterns.go's query classifier)
// generalized from the teacher's BM25+embedding stack onto this module's
// Store/workerpool facade.
package searcher

// Filter is one equality/prefix predicate from a search request's
// filters.all list (spec §4.7 step 2). Only {Key:"path",
// Operator:"starts_with"} is given a concrete translation today; other
// combinations are accepted but ignored, since no other predicate is
// specified.
type Filter struct {
	Key      string
	Operator string
	Value    string
}

// Filters bundles a request's filter predicates. The zero value matches
// everything.
type Filters struct {
	All []Filter
}

// Result is one ranked chunk returned to the caller (spec §4.7 step 6).
type Result struct {
	Path      string
	StartLine int
	NumLines  int
	Text      string
	Score     float64
	IsAnchor  bool
}

// pathPrefix returns the LIKE-style prefix implied by filters, or "" if none
// of the filters is a {path, starts_with} predicate.
func pathPrefix(filters Filters) string {
	for _, f := range filters.All {
		if f.Key == "path" && f.Operator == "starts_with" {
			return f.Value
		}
	}
	return ""
}
