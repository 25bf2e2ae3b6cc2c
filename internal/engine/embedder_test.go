package engine

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram/internal/codec"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(128)
	a, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHashEmbedderDimensions(t *testing.T) {
	e := NewHashEmbedder(64)
	vec, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, 64)
	assert.Equal(t, 64, e.Dimensions())
}

func TestHashEmbedderNormalized(t *testing.T) {
	e := NewHashEmbedder(128)
	vec, err := e.Embed(context.Background(), "normalize this vector please")
	require.NoError(t, err)
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestHashEmbedderEmptyTextIsZeroVector(t *testing.T) {
	e := NewHashEmbedder(32)
	vec, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestHashEmbedderSimilarTextsScoreHigher(t *testing.T) {
	e := NewHashEmbedder(256)
	ctx := context.Background()
	base, _ := e.Embed(ctx, "deploy the payment service to production")
	near, _ := e.Embed(ctx, "deploy payment service to staging")
	far, _ := e.Embed(ctx, "grandma's lasagna recipe with extra basil")
	assert.Greater(t, codec.CosineFloat(base, near), codec.CosineFloat(base, far))
}

func TestTokenizeSkipsShortTokens(t *testing.T) {
	tokens := tokenize("A quick b fix, v2!")
	assert.Equal(t, []string{"quick", "fix", "v2"}, tokens)
}

func TestHashEmbedderDefaultDims(t *testing.T) {
	e := NewHashEmbedder(0)
	assert.Equal(t, 256, e.Dimensions())
}

func TestOllamaEmbedderRejectsWrongDimensions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2, 0.3}},
		})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "nomic-embed-text", 8)
	_, err := e.Embed(context.Background(), "some text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
	assert.Equal(t, 8, e.Dimensions())
}

func TestOllamaEmbedderAcceptsMatchingDimensions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2, 0.3, 0.4}},
		})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "nomic-embed-text", 4)
	vec, err := e.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}
