package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osgrep/osgrep/internal/config"
	"github.com/osgrep/osgrep/internal/searcher"
	"github.com/osgrep/osgrep/internal/store"
)

type fakeEmbedder struct{}

func (fakeEmbedder) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, store.Dimensions), nil
}

func (fakeEmbedder) Rerank(ctx context.Context, query string, docs []string) ([]float32, error) {
	scores := make([]float32, len(docs))
	return scores, nil
}

func newTestServer(t *testing.T, projectRoot string) *Server {
	t.Helper()
	cfg := config.NewConfig()
	st := store.NewFakeStore()
	sc := searcher.New(st, fakeEmbedder{}, cfg.Search, nil)
	return New(projectRoot, cfg, st, sc, nil, nil, nil)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, t.TempDir())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.handleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleSearchRejectsOversizedBody(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	oversized := bytes.Repeat([]byte("a"), maxSearchBodyBytes+2)
	payload, err := json.Marshal(map[string]string{"query": string(oversized)})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(payload))
	s.handleSearch(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandleSearchRejectsPathEscapingRoot(t *testing.T) {
	root := t.TempDir()
	s := newTestServer(t, root)

	payload, err := json.Marshal(map[string]string{"query": "q", "path": "../../etc/passwd"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(payload))
	s.handleSearch(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_path")
}

func TestHandleSearchAcceptsPathInsideRoot(t *testing.T) {
	root := t.TempDir()
	s := newTestServer(t, root)

	payload, err := json.Marshal(map[string]string{"query": "q", "path": "pkg/sub"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(payload))
	s.handleSearch(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "results"))
}

func TestHandleSearchWrongMethodNotFound(t *testing.T) {
	s := newTestServer(t, t.TempDir())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	s.handleSearch(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
