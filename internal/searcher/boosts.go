package searcher

import (
	"regexp"
	"strings"

	"github.com/osgrep/osgrep/internal/store"
)

const (
	boostExactSubstring  = 0.25
	boostAnchor          = 0.12
	boostPathToken       = 0.05
	tokenOverlapCap      = 0.08
	tokenOverlapPerToken = 0.02
	minExactSubstringLen = 3
	minPathTokenLen      = 3
)

var queryTokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

// queryTokens splits a query on non-alphanumeric boundaries (spec §4.7
// step 5's token-overlap bonus), distinct from codetoken.Tokenize's
// case/underscore-aware splitting used elsewhere for embeddings.
func queryTokens(query string) []string {
	return queryTokenPattern.FindAllString(query, -1)
}

// heuristicBoost computes the additive boosts of spec §4.7 step 5 for one
// row against the original query.
func heuristicBoost(query string, row store.Row) float64 {
	var boost float64

	lowerQuery := strings.ToLower(query)
	lowerContent := strings.ToLower(row.Content)
	if len(lowerQuery) >= minExactSubstringLen && strings.Contains(lowerContent, lowerQuery) {
		boost += boostExactSubstring
	}

	if row.IsAnchor {
		boost += boostAnchor
	}

	tokens := queryTokens(query)
	lowerPath := strings.ToLower(row.Path)
	for _, tok := range tokens {
		if len(tok) >= minPathTokenLen && strings.Contains(lowerPath, strings.ToLower(tok)) {
			boost += boostPathToken
			break
		}
	}

	contentTokenSet := make(map[string]struct{})
	for _, tok := range queryTokenPattern.FindAllString(lowerContent, -1) {
		contentTokenSet[tok] = struct{}{}
	}
	overlap := 0
	for _, tok := range tokens {
		if _, ok := contentTokenSet[strings.ToLower(tok)]; ok {
			overlap++
		}
	}
	overlapBoost := float64(overlap) * tokenOverlapPerToken
	if overlapBoost > tokenOverlapCap {
		overlapBoost = tokenOverlapCap
	}
	boost += overlapBoost

	return boost
}

// codeLikePattern matches queries spec §4.7 step 4 calls "code-like":
// contains an uppercase letter, an underscore (covering "has an underscored
// token"), a backtick, a parenthesis, or a slash.
var codeLikePattern = regexp.MustCompile("[A-Z_]|`|[()/]")

// isCodeLike reports whether query looks like code rather than prose, per
// spec §4.7 step 4's rerank-weight selection.
func isCodeLike(query string) bool {
	return codeLikePattern.MatchString(query)
}
