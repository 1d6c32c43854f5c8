package workerpool

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"sync/atomic"
)

// newFakeWorker builds a worker whose "process" is an in-memory goroutine
// instead of a real subprocess, so the dispatch and recycling logic can be
// exercised without a real inference binary.
func newFakeWorker(id string, fail bool) *worker {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	w := &worker{
		id:     id,
		stdin:  reqW,
		dec:    json.NewDecoder(bufio.NewReader(respR)),
		logger: slog.Default(),
	}

	go func() {
		if fail {
			_ = respW.Close()
			_, _ = io.Copy(io.Discard, reqR)
			return
		}
		decReq := json.NewDecoder(bufio.NewReader(reqR))
		for {
			var req Request
			if err := decReq.Decode(&req); err != nil {
				return
			}
			resp := Response{ID: req.ID, Result: req.Payload}
			data, err := json.Marshal(resp)
			if err != nil {
				return
			}
			data = append(data, '\n')
			if _, err := respW.Write(data); err != nil {
				return
			}
		}
	}()

	return w
}

// fakeSpawner counts how many workers it has created. Setting failFirst
// makes the next worker it spawns a failing one (its response stream is
// closed, so every call on it errors), so tests can assert on respawn counts.
type fakeSpawner struct {
	spawnCount atomic.Int32
	failFirst  atomic.Bool
}

func (s *fakeSpawner) spawn(id, _ string, _ *slog.Logger) (*worker, error) {
	s.spawnCount.Add(1)
	fail := s.failFirst.Swap(false)
	return newFakeWorker(id, fail), nil
}
