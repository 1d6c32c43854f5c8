package embedworker

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedBatchDeterministic(t *testing.T) {
	e := NewEmbedder()
	a, err := e.EmbedBatch(context.Background(), []string{"parse the request body"})
	require.NoError(t, err)
	b, err := e.EmbedBatch(context.Background(), []string{"parse the request body"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmbedBatchDimensions(t *testing.T) {
	e := NewEmbedder()
	vecs, err := e.EmbedBatch(context.Background(), []string{"hello world", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	for _, v := range vecs {
		assert.Len(t, v, Dimensions)
	}
}

func TestEmbedBatchUnitNormalized(t *testing.T) {
	e := NewEmbedder()
	vecs, err := e.EmbedBatch(context.Background(), []string{"getUserByIdFromDatabase"})
	require.NoError(t, err)

	var sumSq float64
	for _, x := range vecs[0] {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-4)
}

func TestEncodeQueryDiffersFromRawEmbed(t *testing.T) {
	e := NewEmbedder()
	query, err := e.EncodeQuery(context.Background(), "find the parser")
	require.NoError(t, err)
	raw, err := e.EmbedBatch(context.Background(), []string{"find the parser"})
	require.NoError(t, err)
	assert.NotEqual(t, query, raw[0])
}

func TestEmbedBatchAfterCloseFails(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Close())
	_, err := e.EmbedBatch(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestEmbedEmptyStringReturnsZeroVector(t *testing.T) {
	e := NewEmbedder()
	vecs, err := e.EmbedBatch(context.Background(), []string{"   "})
	require.NoError(t, err)
	for _, x := range vecs[0] {
		assert.Equal(t, float32(0), x)
	}
}
