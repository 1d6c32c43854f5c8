// Package embedworker implements the in-worker embedding and reranking
// façade of spec §4.4. It runs inside a subordinate process spawned by
// internal/workerpool and is reached only through that process's stdin/
// stdout JSON protocol (see cmd/osgrep-worker).
//
// The dense embedder and the late-interaction reranker are both
// hash-based rather than backed by real model weights, following the
// teacher's own StaticEmbedder fallback (internal/embed/static.go):
// deterministic, dependency-free, and good enough to exercise the full
// indexing and retrieval pipeline without shipping or downloading model
// weights.
package embedworker

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/osgrep/osgrep/internal/codetoken"
)

// Dimensions is D from spec §3: the fixed dense-vector width every row's
// vector column must match.
const Dimensions = 384

// QueryInstructionPrefix is prepended before encoding a query, matching how
// asymmetric-retrieval models are trained (spec §4.4).
const QueryInstructionPrefix = "Represent this sentence for searching relevant passages: "

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var programmingStopWords = codetoken.BuildStopWordSet([]string{
	"func", "function", "def", "class", "return", "import", "const", "var",
	"let", "int", "string", "bool", "void", "true", "false", "nil", "null",
	"this", "self", "new",
})

// Embedder produces unit-L2-normalized D-dimensional vectors.
type Embedder struct {
	mu     sync.RWMutex
	closed bool
}

// NewEmbedder constructs an Embedder ready for use.
func NewEmbedder() *Embedder {
	return &Embedder{}
}

// Close marks the embedder unavailable for further calls.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *Embedder) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("embedder is closed")
	}
	return nil
}

// EmbedBatch embeds every text in texts; the caller decides batch size
// (spec §4.4 default 12) before calling this.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		out[i] = embedOne(text)
	}
	return out, nil
}

// EncodeQuery embeds text after prepending the asymmetric-retrieval
// instruction prefix.
func (e *Embedder) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return embedOne(QueryInstructionPrefix + text), nil
}

func embedOne(text string) []float32 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, Dimensions)
	}

	vec := make([]float32, Dimensions)

	tokens := codetoken.FilterStopWords(codetoken.Tokenize(trimmed), programmingStopWords)
	for _, tok := range tokens {
		vec[hashIndex(tok, Dimensions)] += tokenWeight
	}

	for _, ng := range charNgrams(normalizeForNgrams(trimmed), ngramSize) {
		vec[hashIndex(ng, Dimensions)] += ngramWeight
	}

	return normalizeL2(vec)
}

func normalizeForNgrams(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func charNgrams(s string, n int) []string {
	if len(s) < n {
		return nil
	}
	ngrams := make([]string, 0, len(s)-n+1)
	for i := 0; i <= len(s)-n; i++ {
		ngrams = append(ngrams, s[i:i+n])
	}
	return ngrams
}

func hashIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

func normalizeL2(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
