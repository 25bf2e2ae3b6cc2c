package index

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram/internal/codec"
)

func randVec(rng *rand.Rand, dims int) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

func TestDetermineStrategy_Cutoffs(t *testing.T) {
	cases := []struct {
		size      int
		hnswReady bool
		want      Strategy
	}{
		{0, false, StrategyExact},
		{499, true, StrategyExact},
		{500, false, StrategyBinaryRescore},
		{999, true, StrategyBinaryRescore},
		{1000, true, StrategyHNSW},
		{1000, false, StrategyBinaryRescore},
		{50000, false, StrategyBinaryRescore},
	}
	for _, c := range cases {
		got := DetermineStrategy(c.size, "", c.hnswReady)
		assert.Equal(t, c.want, got, "size=%d ready=%v", c.size, c.hnswReady)
	}
}

func TestDetermineStrategy_OverrideWins(t *testing.T) {
	assert.Equal(t, StrategyExact, DetermineStrategy(100000, StrategyExact, true))
	assert.Equal(t, StrategyHNSW, DetermineStrategy(3, StrategyHNSW, false))
}

func TestSearch_EmptyCorpusAndBadInput(t *testing.T) {
	ix := New(16)
	assert.Empty(t, ix.Search(make([]float32, 16), 10))
	assert.Empty(t, ix.Search(make([]float32, 8), 10))  // dimension mismatch
	assert.Empty(t, ix.Search(make([]float32, 16), 0)) // k=0
}

func TestSearch_ZeroQueryYieldsZeroSimilarity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	ix := New(16)
	require.NoError(t, ix.Add("a", randVec(rng, 16)))

	matches := ix.Search(make([]float32, 16), 5)
	require.Len(t, matches, 1)
	assert.Equal(t, 0.0, matches[0].Similarity)
}

func TestSearch_ExactFindsNearestFirst(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	ix := New(32)
	target := randVec(rng, 32)
	require.NoError(t, ix.Add("target", target))
	for i := 0; i < 50; i++ {
		require.NoError(t, ix.Add(fmt.Sprintf("m-%d", i), randVec(rng, 32)))
	}

	matches := ix.Search(target, 5)
	require.NotEmpty(t, matches)
	assert.Equal(t, "target", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
	}
}

func TestBinaryRescore_AgreesWithExactOnTopResult(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	ix := New(64)
	vecs := make(map[string][]float32)
	for i := 0; i < 600; i++ {
		id := fmt.Sprintf("m-%d", i)
		v := randVec(rng, 64)
		vecs[id] = v
		require.NoError(t, ix.Add(id, v))
	}
	assert.Equal(t, StrategyBinaryRescore, ix.StrategyInUse())

	// Querying with a stored vector must surface itself first.
	query := vecs["m-123"]
	matches := ix.Search(query, 10)
	require.NotEmpty(t, matches)
	assert.Equal(t, "m-123", matches[0].ID)
}

func TestHNSW_RecallAgainstExact(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	dims := 64
	ix := New(dims)
	for i := 0; i < 1200; i++ {
		require.NoError(t, ix.Add(fmt.Sprintf("m-%d", i), randVec(rng, dims)))
	}
	require.NoError(t, ix.Rebuild())
	assert.Equal(t, StrategyHNSW, ix.StrategyInUse())

	var recall float64
	queries := 10
	for q := 0; q < queries; q++ {
		query := randVec(rng, dims)
		approx := ix.Search(query, 10)

		ix.SetStrategyOverride(StrategyExact)
		exact := ix.Search(query, 10)
		ix.SetStrategyOverride("")

		exactIDs := make(map[string]bool, len(exact))
		for _, m := range exact {
			exactIDs[m.ID] = true
		}
		hits := 0
		for _, m := range approx {
			if exactIDs[m.ID] {
				hits++
			}
		}
		recall += float64(hits) / 10
	}
	recall /= float64(queries)
	assert.GreaterOrEqual(t, recall, 0.8, "recall@10 = %.2f", recall)
}

func TestHNSW_RemovedIDsNeverReturn(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	h := NewHNSW(32)
	var removed []float32
	for i := 0; i < 200; i++ {
		v := randVec(rng, 32)
		require.NoError(t, h.Add(fmt.Sprintf("m-%d", i), quantize(v)))
		if i == 42 {
			removed = v
		}
	}
	h.Remove("m-42")
	assert.False(t, h.Contains("m-42"))
	assert.Equal(t, 199, h.Len())

	matches := h.Search(quantize(removed), 20)
	for _, m := range matches {
		assert.NotEqual(t, "m-42", m.ID)
	}
}

func TestHNSW_AddIdempotentPerID(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	h := NewHNSW(16)
	v := quantize(randVec(rng, 16))
	require.NoError(t, h.Add("a", v))
	require.NoError(t, h.Add("a", v))
	assert.Equal(t, 1, h.Len())
}

func TestHNSW_SaveLoadRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	h := NewHNSW(32)
	for i := 0; i < 100; i++ {
		require.NoError(t, h.Add(fmt.Sprintf("m-%d", i), quantize(randVec(rng, 32))))
	}
	h.Remove("m-9")

	path := filepath.Join(t.TempDir(), "graph.bin")
	require.NoError(t, h.Save(path))

	loaded, err := LoadHNSW(path)
	require.NoError(t, err)
	assert.Equal(t, 99, loaded.Len())
	assert.False(t, loaded.Contains("m-9"))
	assert.True(t, loaded.Contains("m-10"))
}

func TestIndex_GraphPersistRestore(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	ix := New(32)
	for i := 0; i < 1100; i++ {
		require.NoError(t, ix.Add(fmt.Sprintf("m-%d", i), randVec(rng, 32)))
	}
	require.NoError(t, ix.Rebuild())
	require.Equal(t, 1100, ix.GraphSize())

	path := filepath.Join(t.TempDir(), "engram.db.graph")
	require.NoError(t, ix.SaveGraph(path))

	fresh := New(32)
	require.NoError(t, fresh.LoadGraph(path))
	assert.Equal(t, 1100, fresh.GraphSize())
}

func TestRebuild_SearchDuringRebuild(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	ix := New(32)
	for i := 0; i < 1100; i++ {
		require.NoError(t, ix.Add(fmt.Sprintf("m-%d", i), randVec(rng, 32)))
	}
	require.NoError(t, ix.Rebuild())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			_ = ix.Rebuild()
		}
	}()

	for i := 0; i < 50; i++ {
		matches := ix.Search(randVec(rng, 32), 10)
		assert.NotEmpty(t, matches)
	}
	<-done
}

func quantize(v []float32) []byte {
	return codec.QuantizeInt8(v)
}
