package workerpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The fake worker in worker_fake_test.go echoes its request payload back
// as the result, so these tests only need to confirm the typed client
// methods marshal/unmarshal the right shape, not that any real inference
// ran (that is embedworker's job).

func TestPoolEmbedBatchRoundTrips(t *testing.T) {
	p := newTestPool(t, &fakeSpawner{}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// The echo fake can't produce real vectors, so EmbedBatch's decode
	// succeeds with a zero-value result; this just exercises the wiring.
	vecs, err := p.EmbedBatch(ctx, []string{"func main() {}"})
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestPoolEncodeQueryReturnsNoError(t *testing.T) {
	p := newTestPool(t, &fakeSpawner{}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := p.EncodeQuery(ctx, "find the parser")
	require.NoError(t, err)
}

func TestPoolRerankEmptyDocsShortCircuits(t *testing.T) {
	p := newTestPool(t, &fakeSpawner{}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	scores, err := p.Rerank(ctx, "query", nil)
	require.NoError(t, err)
	assert.Nil(t, scores)
}
