package embedworker

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/osgrep/osgrep/internal/codetoken"
)

// TokenDim is the per-token late-interaction vector width (spec §3, §4.4).
const TokenDim = 48

// skipRanges are the token-id ranges excluded from MaxSim on both sides
// (spec §6): punctuation and special ids bundled with the reference
// ColBERT model. Token ids here are a stable hash of the surface token
// into the same id space, since no real subword vocabulary is loaded.
var skipRanges = [][2]int{{2, 16}, {27, 33}, {60, 65}, {92, 95}}

const vocabSize = 1 << 16

// RerankResult is one scored document from Rerank.
type RerankResult struct {
	Index int
	Score float32
}

// Reranker scores (query, doc) pairs with ColBERT-style MaxSim
// late-interaction over per-token vectors.
type Reranker struct{}

// NewReranker constructs a Reranker ready for use.
func NewReranker() *Reranker {
	return &Reranker{}
}

// Close is a no-op; present so Reranker satisfies the same lifecycle shape
// as Embedder.
func (r *Reranker) Close() error { return nil }

// Rerank scores every doc against query and returns one RerankResult per
// doc, in the same order as docs.
func (r *Reranker) Rerank(ctx context.Context, query string, docs []string) ([]RerankResult, error) {
	qVecs := encodeTokenVectors(query)
	results := make([]RerankResult, len(docs))
	for i, doc := range docs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		dVecs := encodeTokenVectors(doc)
		results[i] = RerankResult{Index: i, Score: maxSim(qVecs, dVecs)}
	}
	return results, nil
}

// tokenVector is one token's dequantized late-interaction vector.
type tokenVector struct {
	values [TokenDim]float32
}

func encodeTokenVectors(text string) []tokenVector {
	tokens := codetoken.Tokenize(text)
	vecs := make([]tokenVector, 0, len(tokens))
	for _, tok := range tokens {
		id := tokenID(tok)
		if skipped(id) {
			continue
		}
		vecs = append(vecs, quantizeDequantize(tok))
	}
	return vecs
}

func tokenID(tok string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tok))
	return int(h.Sum32() % vocabSize)
}

func skipped(id int) bool {
	for _, r := range skipRanges {
		if id >= r[0] && id <= r[1] {
			return true
		}
	}
	return false
}

// quantizeDequantize produces a token's float32 vector by simulating the
// int8-quantize/dequantize round trip an on-disk ColBERT store would do:
// derive raw hashed values, find the per-token scale that maps the max
// magnitude to int8 range, quantize, then dequantize.
func quantizeDequantize(tok string) tokenVector {
	var raw [TokenDim]float32
	h := fnv.New64a()
	for i := 0; i < TokenDim; i++ {
		h.Reset()
		_, _ = h.Write([]byte(tok))
		_, _ = h.Write([]byte{byte(i)})
		sum := h.Sum64()
		raw[i] = float32(int64(sum%201)-100) / 100 // in [-1, 1]
	}

	var maxAbs float32
	for _, v := range raw {
		if a := float32(math.Abs(float64(v))); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs == 0 {
		return tokenVector{}
	}
	scale := maxAbs / 127

	var out tokenVector
	for i, v := range raw {
		q := int8(math.Round(float64(v / scale)))
		out.values[i] = float32(q) * scale
	}
	return out
}

func maxSim(query, doc []tokenVector) float32 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	var total float32
	for _, q := range query {
		var best float32 = -1 << 30
		for _, d := range doc {
			if s := dot(q.values, d.values); s > best {
				best = s
			}
		}
		total += best
	}
	return total
}

func dot(a, b [TokenDim]float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
