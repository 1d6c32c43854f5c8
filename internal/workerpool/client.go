package workerpool

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// queryCacheSize bounds the number of distinct query strings whose encoded
// vector is kept around, grounded in the teacher's CachedEmbedder
// (internal/embed/cached.go): repeated identical searches (typeahead,
// re-running the same query with a different --path filter) are common
// enough that skipping a worker round trip is worth a small cache.
const queryCacheSize = 512

// EmbedBatch sends a MethodProcessFile request for texts and returns one
// D-dimensional unit vector per text, in order. This is the main process's
// only path to the in-worker Embedder (spec §4.4): the model itself never
// runs outside a subordinate process.
func (p *Pool) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	data, err := p.Submit(ctx, MethodProcessFile, ProcessFileRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("processFile: %w", err)
	}
	var resp ProcessFileResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode processFile response: %w", err)
	}
	return resp.Vectors, nil
}

// EncodeQuery sends a MethodEncodeQuery request and returns the query's
// embedding, already prefixed with the asymmetric-retrieval instruction by
// the worker. Identical query text served within the cache's lifetime
// returns the cached vector without dispatching to a worker.
func (p *Pool) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	if p.queryCache != nil {
		if vec, ok := p.queryCache.Get(text); ok {
			return vec, nil
		}
	}

	data, err := p.Submit(ctx, MethodEncodeQuery, EncodeQueryRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("encodeQuery: %w", err)
	}
	var resp EncodeQueryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode encodeQuery response: %w", err)
	}

	if p.queryCache != nil {
		p.queryCache.Add(text, resp.Vector)
	}
	return resp.Vector, nil
}

// Rerank sends a MethodRerank request and returns one MaxSim score per doc,
// in the same order as docs.
func (p *Pool) Rerank(ctx context.Context, query string, docs []string) ([]float32, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	data, err := p.Submit(ctx, MethodRerank, RerankRequest{Query: query, Docs: docs})
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	var resp RerankResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return resp.Scores, nil
}
