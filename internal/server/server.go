// Package server implements the long-running HTTP shell of spec §4.9: an
// initial sync to readiness, GET /health and POST /search over TCP, and a
// graceful shutdown that drains the worker pool and closes the store. It
// is grounded in the teacher's internal/daemon.Server lifecycle (construct,
// SetHandler, ListenAndServe(ctx) blocking until context cancellation,
// wait-group-drained connections, Close), adapted from its Unix-socket
// custom-RPC transport onto net/http since this module's wire contract is
// plain HTTP+JSON rather than a length-prefixed request/response protocol.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/osgrep/osgrep/internal/config"
	"github.com/osgrep/osgrep/internal/osgreperr"
	"github.com/osgrep/osgrep/internal/searcher"
	"github.com/osgrep/osgrep/internal/store"
	"github.com/osgrep/osgrep/internal/syncer"
)

// maxSearchBodyBytes caps POST /search request bodies (spec §4.9, §8: a
// body of exactly 1 MB succeeds, 1 MB + 1 byte is rejected).
const maxSearchBodyBytes = 1 << 20

// Pool is the subset of the worker pool lifecycle the server drains on
// shutdown.
type Pool interface {
	Destroy()
}

// Server is osgrep's HTTP shell for one project.
type Server struct {
	projectRoot string
	addr        string
	searcher    *searcher.Searcher
	syncer      *syncer.Syncer
	store       store.Store
	pool        Pool
	cfg         *config.Config
	logger      *slog.Logger

	httpServer *http.Server
	mu         sync.Mutex
	ready      bool
}

// New builds a Server for one project. It does not start listening; call
// Run.
func New(projectRoot string, cfg *config.Config, st store.Store, sc *searcher.Searcher, sy *syncer.Syncer, pool Pool, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		projectRoot: projectRoot,
		addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		searcher:    sc,
		syncer:      sy,
		store:       st,
		pool:        pool,
		cfg:         cfg,
		logger:      logger.With("component", "server"),
	}
}

// Run performs the initial sync to readiness, then listens until ctx is
// cancelled, draining the worker pool and closing the store on the way out
// (spec §4.9: "Graceful shutdown on SIGINT/SIGTERM: stop accepting, close
// store, drain pool, exit."). When cfg.EnableWatch is set, it also starts
// the fsnotify-driven resync loop alongside the listener (spec §9).
func (s *Server) Run(ctx context.Context) error {
	if s.syncer != nil {
		report, err := s.syncer.Sync(ctx, &syncer.Options{ProjectRoot: s.projectRoot})
		if err != nil {
			return fmt.Errorf("initial sync: %w", err)
		}
		s.logger.Info("initial sync complete",
			"scanned", report.Scanned, "new", report.New, "changed", report.Changed,
			"indexed", report.Indexed, "errors", report.Errors)

		if s.cfg.EnableWatch {
			go s.watch(ctx)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/search", s.handleSearch)

	s.mu.Lock()
	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}
	s.ready = true
	s.mu.Unlock()

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(listener)
	}()

	s.logger.Info("server listening", "addr", s.addr)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	return s.shutdown()
}

// watch runs the fsnotify-driven resync loop until ctx is cancelled (spec
// §9). It assumes Run's initial sync already brought the index current.
func (s *Server) watch(ctx context.Context) {
	opts := &syncer.Options{ProjectRoot: s.projectRoot}
	err := s.syncer.WatchLoop(ctx, opts, func(report *syncer.Report) {
		s.logger.Info("resync complete",
			"new", report.New, "changed", report.Changed, "stale", report.Stale, "errors", report.Errors)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("watch loop exited", "error", err)
	}
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.pool != nil {
		s.pool.Destroy()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
	Path  string `json:"path"`
}

type searchResponse struct {
	Results []searcher.Result `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSearchBodyBytes)

	var req searchRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", err)
			return
		}
		writeError(w, http.StatusBadRequest, "parse_error", err)
		return
	}

	var filters searcher.Filters
	if req.Path != "" {
		prefix, err := s.resolvePathPrefix(req.Path)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_path", err)
			return
		}
		filters.All = append(filters.All, searcher.Filter{Key: "path", Operator: "starts_with", Value: prefix})
	}

	results, err := s.searcher.Search(r.Context(), req.Query, req.Limit, filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

// resolvePathPrefix normalizes req.Path against the project root and
// rejects anything that escapes it (spec §4.9, §7 InvalidPath).
func (s *Server) resolvePathPrefix(reqPath string) (string, error) {
	cleaned := filepath.Clean(filepath.Join(s.projectRoot, reqPath))
	absRoot, err := filepath.Abs(s.projectRoot)
	if err != nil {
		return "", err
	}
	cleaned, err = filepath.Abs(cleaned)
	if err != nil {
		return "", err
	}
	if cleaned != absRoot && !strings.HasPrefix(cleaned, absRoot+string(filepath.Separator)) {
		return "", osgreperr.InvalidPath(reqPath)
	}
	rel, err := filepath.Rel(absRoot, cleaned)
	if err != nil {
		return "", osgreperr.InvalidPath(reqPath)
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

func isMaxBytesError(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, map[string]string{"error": code, "message": err.Error()})
}
