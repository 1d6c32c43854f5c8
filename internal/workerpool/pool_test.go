package workerpool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osgrep/osgrep/internal/config"
)

func newTestPool(t *testing.T, spawner *fakeSpawner, count int) *Pool {
	t.Helper()
	orig := spawnWorkerFunc
	spawnWorkerFunc = spawner.spawn
	t.Cleanup(func() { spawnWorkerFunc = orig })

	p, err := New(config.WorkerConfig{Count: count, TimeoutMS: 2000}, nil)
	require.NoError(t, err)
	t.Cleanup(p.Destroy)
	return p
}

func TestPoolSubmitEchoesPayload(t *testing.T) {
	p := newTestPool(t, &fakeSpawner{}, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := p.Submit(ctx, MethodEncodeQuery, map[string]string{"text": "hello"})
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(result, &payload))
	assert.Equal(t, "hello", payload["text"])
}

func TestPoolSubmitAfterDestroyFails(t *testing.T) {
	p := newTestPool(t, &fakeSpawner{}, 1)
	p.Destroy()

	_, err := p.Submit(context.Background(), MethodEncodeQuery, nil)
	assert.Error(t, err)
}

func TestPoolRecyclesWorkerOnCallFailure(t *testing.T) {
	spawner := &fakeSpawner{}
	spawner.failFirst.Store(true)
	p := newTestPool(t, spawner, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := p.Submit(ctx, MethodProcessFile, "doc.go")
	assert.Error(t, err)

	// The failed worker should have been recycled; a second submission
	// against the replacement should succeed.
	require.Eventually(t, func() bool {
		return spawner.spawnCount.Load() >= 2
	}, time.Second, 10*time.Millisecond)

	result, err := p.Submit(ctx, MethodProcessFile, "doc.go")
	require.NoError(t, err)
	var got string
	require.NoError(t, json.Unmarshal(result, &got))
	assert.Equal(t, "doc.go", got)
}

func TestPoolRecyclesDrainingWorker(t *testing.T) {
	spawner := &fakeSpawner{}
	p := newTestPool(t, spawner, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p.mu.Lock()
	for _, w := range p.workers {
		w.draining.Store(true)
	}
	p.mu.Unlock()

	_, err := p.Submit(ctx, MethodRerank, "x")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return spawner.spawnCount.Load() >= 2
	}, time.Second, 10*time.Millisecond)
}
