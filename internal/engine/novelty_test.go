package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram/internal/store"
)

func TestThresholdsForKnownCategories(t *testing.T) {
	cases := []struct {
		category  string
		redundant float64
		ambiguous float64
	}{
		{store.CategoryFact, 0.95, 0.82},
		{store.CategoryObservation, 0.92, 0.78},
		{store.CategoryAction, 0.90, 0.75},
		{store.CategoryPlan, 0.88, 0.72},
		{"unknown", 0.92, 0.78},
	}
	for _, tc := range cases {
		got := ThresholdsFor(tc.category)
		assert.Equal(t, tc.redundant, got.Redundant, tc.category)
		assert.Equal(t, tc.ambiguous, got.Ambiguous, tc.category)
	}
}

func TestClassifyNoveltyEmptyCorpusIsNew(t *testing.T) {
	e, _ := testEngine(t)
	res, err := e.ClassifyNovelty(context.Background(), vecBase, store.CategoryFact)
	require.NoError(t, err)
	assert.Equal(t, NoveltyNew, res.Verdict)
	assert.Nil(t, res.Existing)
}

func TestClassifyNoveltyVerdicts(t *testing.T) {
	e, emb := testEngine(t)
	emb.assign("the cache holds ten thousand entries", vecBase)
	stored, err := e.Store(context.Background(), StoreInput{
		Content: "the cache holds ten thousand entries", Category: store.CategoryFact,
	})
	require.NoError(t, err)

	// identical vector: redundant
	res, err := e.ClassifyNovelty(context.Background(), vecBase, store.CategoryFact)
	require.NoError(t, err)
	assert.Equal(t, NoveltyRedundant, res.Verdict)
	require.NotNil(t, res.Existing)
	assert.Equal(t, stored.ID, res.Existing.ID)

	// in-between similarity: ambiguous
	res, err = e.ClassifyNovelty(context.Background(), vecNear, store.CategoryFact)
	require.NoError(t, err)
	assert.Equal(t, NoveltyAmbiguous, res.Verdict)

	// orthogonal: new
	res, err = e.ClassifyNovelty(context.Background(), vecOrthogonal, store.CategoryFact)
	require.NoError(t, err)
	assert.Equal(t, NoveltyNew, res.Verdict)
}

func TestFindSimilarIgnoresOtherCategories(t *testing.T) {
	e, emb := testEngine(t)
	emb.assign("rotate the signing keys quarterly", vecBase)
	_, err := e.Store(context.Background(), StoreInput{
		Content: "rotate the signing keys quarterly", Category: store.CategoryAction,
	})
	require.NoError(t, err)

	matches, err := e.FindSimilar(context.Background(), vecBase, store.CategoryFact)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = e.FindSimilar(context.Background(), vecBase, store.CategoryAction)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
