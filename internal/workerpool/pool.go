package workerpool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/osgrep/osgrep/internal/config"
)

// task is one unit of work waiting for a free worker.
type task struct {
	ctx     context.Context
	method  Method
	payload any
	result  chan taskResult
}

type taskResult struct {
	data json.RawMessage
	err  error
}

// Pool manages a fixed-size fleet of subordinate inference processes and
// dispatches tasks to them FIFO, per spec §4.3.
type Pool struct {
	cfg    config.WorkerConfig
	logger *slog.Logger

	queue chan *task

	mu      sync.Mutex
	workers map[string]*worker
	nextID  int
	closed  bool

	wg          sync.WaitGroup
	monitorStop chan struct{}

	// queryCache holds recently encoded query vectors, keyed by raw query
	// text, so an identical repeated search skips a worker round trip
	// (spec §9's in-flight task tracking, grounded in the teacher's
	// CachedEmbedder).
	queryCache *lru.Cache[string, []float32]
}

// New starts cfg.Count workers and begins FIFO dispatch.
func New(cfg config.WorkerConfig, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Count < 1 {
		cfg.Count = 1
	}

	queryCache, _ := lru.New[string, []float32](queryCacheSize)

	p := &Pool{
		cfg:         cfg,
		logger:      logger.With("component", "workerpool"),
		queue:       make(chan *task, cfg.Count*4),
		workers:     make(map[string]*worker),
		monitorStop: make(chan struct{}),
		queryCache:  queryCache,
	}

	for i := 0; i < cfg.Count; i++ {
		if err := p.spawnAndRun(); err != nil {
			p.Destroy()
			return nil, fmt.Errorf("spawn worker %d: %w", i, err)
		}
	}

	p.wg.Add(1)
	go p.monitorMemory()

	return p, nil
}

func (p *Pool) spawnAndRun() error {
	p.mu.Lock()
	id := fmt.Sprintf("worker-%d", p.nextID)
	p.nextID++
	p.mu.Unlock()

	w, err := spawnWorkerFunc(id, p.cfg.BinaryPath, p.logger)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.workers[id] = w
	p.mu.Unlock()

	p.wg.Add(1)
	go p.dispatchLoop(w)
	return nil
}

// dispatchLoop pulls tasks off the shared FIFO queue and runs them on w
// until w is killed (crash, timeout, or draining) or the pool is destroyed.
func (p *Pool) dispatchLoop(w *worker) {
	defer p.wg.Done()

	for t := range p.queue {
		timeout := time.Duration(p.cfg.TimeoutMS) * time.Millisecond
		ctx, cancel := context.WithTimeout(t.ctx, timeout)
		data, err := w.call(ctx, t.method, t.payload)
		cancel()

		t.result <- taskResult{data: data, err: err}

		if err != nil {
			p.logger.Warn("worker task failed, recycling worker", "worker_id", w.id, "error", err)
			p.recycle(w)
			return
		}
		if w.draining.Load() {
			p.logger.Info("recycling drained worker", "worker_id", w.id)
			p.recycle(w)
			return
		}
	}
}

// recycle kills w and, unless the pool is being destroyed, starts a
// replacement — spec §4.3's crash-recovery and memory-discipline paths.
func (p *Pool) recycle(w *worker) {
	w.kill()

	p.mu.Lock()
	delete(p.workers, w.id)
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return
	}
	if err := p.spawnAndRun(); err != nil {
		p.logger.Error("failed to respawn worker", "error", err)
	}
}

func (p *Pool) monitorMemory() {
	defer p.wg.Done()

	limit := int64(p.cfg.MemoryLimitMB) * 1024 * 1024
	if limit <= 0 {
		limit = 1536 * 1024 * 1024
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.monitorStop:
			return
		case <-ticker.C:
			p.mu.Lock()
			workers := make([]*worker, 0, len(p.workers))
			for _, w := range p.workers {
				workers = append(workers, w)
			}
			p.mu.Unlock()

			for _, w := range workers {
				if w.residentSetBytes() > limit {
					w.draining.Store(true)
				}
			}
		}
	}
}

// Submit enqueues a task and blocks until a worker completes it, the
// context is cancelled, or the pool is closed.
func (p *Pool) Submit(ctx context.Context, method Method, payload any) (json.RawMessage, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("workerpool: closed")
	}
	p.mu.Unlock()

	t := &task{ctx: ctx, method: method, payload: payload, result: make(chan taskResult, 1)}

	select {
	case p.queue <- t:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-t.result:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Destroy marks the pool closed, stops accepting new tasks, and kills every
// worker, per spec §4.3.
func (p *Pool) Destroy() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	workers := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	close(p.monitorStop)
	close(p.queue)

	for _, w := range workers {
		w.kill()
	}

	p.wg.Wait()

	// Drain whatever tasks were still buffered in the queue when it closed
	// so their Submit callers don't block forever.
	for t := range p.queue {
		t.result <- taskResult{err: fmt.Errorf("workerpool: destroyed")}
	}
}
