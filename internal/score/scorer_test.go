package score

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram/internal/store"
)

func scoredRecord(importance float64, age time.Duration, access int) store.Record {
	now := time.Now()
	last := now.Add(-age)
	return store.Record{
		ID:             "r-test",
		Content:        "scored record",
		Category:       store.CategoryFact,
		Importance:     importance,
		AccessCount:    access,
		LastAccessedAt: &last,
		InsertedAt:     now.Add(-age),
	}
}

func TestPresetFallsBackToBalanced(t *testing.T) {
	assert.Equal(t, Preset("balanced"), Preset("no-such-preset"))
	assert.Equal(t, Preset("balanced"), Preset(""))
}

func TestPresetWeightsSumToOne(t *testing.T) {
	for _, name := range []string{"balanced", "semantic", "recent", "important", "popular"} {
		w := Preset(name)
		sum := w.Semantic + w.Recency + w.Importance + w.Access
		assert.InDelta(t, 1.0, sum, 1e-9, "preset %s", name)
	}
}

func TestRecencyFactorDecreasesWithAge(t *testing.T) {
	now := time.Now()
	fresh := scoredRecord(0.5, time.Hour, 0)
	stale := scoredRecord(0.5, 30*24*time.Hour, 0)
	assert.Greater(t, RecencyFactor(&fresh, now), RecencyFactor(&stale, now))
}

func TestRecencyFactorFallsBackToInsertedAt(t *testing.T) {
	now := time.Now()
	r := scoredRecord(0.5, 10*24*time.Hour, 0)
	r.LastAccessedAt = nil
	got := RecencyFactor(&r, now)
	assert.Greater(t, got, 0.0)
	assert.Less(t, got, 1.0)
}

func TestAccessFactorBoundedAndMonotone(t *testing.T) {
	prev := -1.0
	for _, n := range []int{0, 1, 5, 50, 5000} {
		f := AccessFactor(n)
		assert.GreaterOrEqual(t, f, prev)
		assert.LessOrEqual(t, f, 1.0)
		prev = f
	}
	assert.Zero(t, AccessFactor(0))
}

func TestSemanticAbsentQueryIsZero(t *testing.T) {
	r := scoredRecord(0.5, time.Hour, 0)
	r.Embedding = []float32{1, 0, 0, 0}
	assert.Zero(t, Semantic(&r, nil))
}

func TestScoreStaysInUnitInterval(t *testing.T) {
	now := time.Now()
	r := scoredRecord(1.0, time.Minute, 100000)
	r.Embedding = []float32{1, 0, 0, 0}
	s := Score(&r, []float32{1, 0, 0, 0}, Preset("balanced"), now, 1.0)
	require.GreaterOrEqual(t, s, 0.0)
	require.LessOrEqual(t, s, 1.0)
}

func TestRankOrdersDescending(t *testing.T) {
	query := []float32{1, 0, 0, 0}
	close := scoredRecord(0.5, time.Hour, 0)
	close.ID = "r-close"
	close.Embedding = []float32{0.9, 0.1, 0, 0}
	far := scoredRecord(0.5, time.Hour, 0)
	far.ID = "r-far"
	far.Embedding = []float32{0, 0, 1, 0}

	ranked := Rank([]store.Record{far, close}, query, Preset("semantic"), nil)
	require.Len(t, ranked, 2)
	assert.Equal(t, "r-close", ranked[0].Record.ID)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRankUsesGraphRelevance(t *testing.T) {
	a := scoredRecord(0.5, time.Hour, 0)
	a.ID = "r-a"
	b := scoredRecord(0.5, time.Hour, 0)
	b.ID = "r-b"
	w := Weights{Semantic: 0, Recency: 0, Importance: 0, Access: 0, Graph: 1}
	ranked := Rank([]store.Record{a, b}, nil, w, map[string]float64{"r-b": 1.0})
	require.Len(t, ranked, 2)
	assert.Equal(t, "r-b", ranked[0].Record.ID)
}
