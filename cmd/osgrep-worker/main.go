// Command osgrep-worker is the subordinate process spawned by
// internal/workerpool (spec §4.3): one per pool slot, holding its own
// embedder and reranker state, talking newline-delimited JSON over stdin/
// stdout. It never touches the store or the network directly — it only
// answers processFile/encodeQuery/rerank requests from its parent.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/osgrep/osgrep/internal/embedworker"
	"github.com/osgrep/osgrep/internal/workerpool"
)

func main() {
	workerID := flag.String("worker-id", "", "pool-assigned worker identifier")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "osgrep-worker", "worker_id", *workerID)

	embedder := embedworker.NewEmbedder()
	reranker := embedworker.NewReranker()
	defer embedder.Close()
	defer reranker.Close()

	if err := run(context.Background(), os.Stdin, os.Stdout, embedder, reranker, logger); err != nil && err != io.EOF {
		logger.Error("worker loop exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, in io.Reader, out io.Writer, embedder *embedworker.Embedder, reranker *embedworker.Reranker, logger *slog.Logger) error {
	dec := json.NewDecoder(bufio.NewReader(in))
	enc := json.NewEncoder(out)

	for {
		var req workerpool.Request
		if err := dec.Decode(&req); err != nil {
			return err
		}

		result, err := dispatch(ctx, req, embedder, reranker)
		resp := workerpool.Response{ID: req.ID}
		if err != nil {
			logger.Warn("request failed", "method", req.Method, "error", err)
			resp.Error = err.Error()
		} else {
			resp.Result = result
		}

		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

func dispatch(ctx context.Context, req workerpool.Request, embedder *embedworker.Embedder, reranker *embedworker.Reranker) (any, error) {
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("re-encode payload: %w", err)
	}

	switch req.Method {
	case workerpool.MethodProcessFile:
		var p workerpool.ProcessFileRequest
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode processFile payload: %w", err)
		}
		vectors, err := embedder.EmbedBatch(ctx, p.Texts)
		if err != nil {
			return nil, err
		}
		return workerpool.ProcessFileResponse{Vectors: vectors}, nil

	case workerpool.MethodEncodeQuery:
		var p workerpool.EncodeQueryRequest
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode encodeQuery payload: %w", err)
		}
		vec, err := embedder.EncodeQuery(ctx, p.Text)
		if err != nil {
			return nil, err
		}
		return workerpool.EncodeQueryResponse{Vector: vec}, nil

	case workerpool.MethodRerank:
		var p workerpool.RerankRequest
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode rerank payload: %w", err)
		}
		results, err := reranker.Rerank(ctx, p.Query, p.Docs)
		if err != nil {
			return nil, err
		}
		scores := make([]float32, len(p.Docs))
		for _, r := range results {
			scores[r.Index] = r.Score
		}
		return workerpool.RerankResponse{Scores: scores}, nil

	default:
		return nil, fmt.Errorf("unknown method: %s", req.Method)
	}
}
