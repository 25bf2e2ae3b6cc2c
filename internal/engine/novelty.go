package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/engramdb/engram/internal/codec"
	"github.com/engramdb/engram/internal/store"
)

// Novelty is the detector's verdict on incoming content.
type Novelty string

const (
	NoveltyNew       Novelty = "new"
	NoveltyRedundant Novelty = "redundant"
	NoveltyAmbiguous Novelty = "ambiguous"
)

// NoveltyThresholds are the similarity cutoffs for one category.
// At or above Redundant the content duplicates existing memory; between
// Ambiguous and Redundant the integrator makes the finer call.
type NoveltyThresholds struct {
	Redundant float64
	Ambiguous float64
}

var noveltyTable = map[string]NoveltyThresholds{
	store.CategoryFact:        {Redundant: 0.95, Ambiguous: 0.82},
	store.CategoryObservation: {Redundant: 0.92, Ambiguous: 0.78},
	store.CategoryAction:      {Redundant: 0.90, Ambiguous: 0.75},
	store.CategoryPlan:        {Redundant: 0.88, Ambiguous: 0.72},
}

var noveltyDefault = NoveltyThresholds{Redundant: 0.92, Ambiguous: 0.78}

// ThresholdsFor returns the category's thresholds, falling back to the
// defaults for unknown categories.
func ThresholdsFor(category string) NoveltyThresholds {
	if t, ok := noveltyTable[category]; ok {
		return t
	}
	return noveltyDefault
}

// SimilarRecord pairs an existing active record with its similarity to
// candidate content.
type SimilarRecord struct {
	Record     store.Record
	Similarity float64
}

// NoveltyResult is a classification plus the candidates that drove it.
// Existing is set for redundant and ambiguous verdicts.
type NoveltyResult struct {
	Verdict    Novelty
	Existing   *store.Record
	Similarity float64
	Candidates []SimilarRecord
}

// FindSimilar compares quantized content against all active records of
// the same category and returns the matches at or above the category's
// ambiguous threshold, most similar first.
func (e *Engine) FindSimilar(ctx context.Context, embedding []float32, category string) ([]SimilarRecord, error) {
	records, err := e.DB.ActiveByCategory(category)
	if err != nil {
		return nil, fmt.Errorf("list active %s records: %w", category, err)
	}

	code := codec.QuantizeInt8(embedding)
	floor := ThresholdsFor(category).Ambiguous

	var matches []SimilarRecord
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sim := codec.CosineInt8(code, r.EmbeddingInt8)
		if sim >= floor {
			matches = append(matches, SimilarRecord{Record: r, Similarity: sim})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches, nil
}

// ClassifyNovelty runs the detector for the given content embedding.
func (e *Engine) ClassifyNovelty(ctx context.Context, embedding []float32, category string) (NoveltyResult, error) {
	matches, err := e.FindSimilar(ctx, embedding, category)
	if err != nil {
		return NoveltyResult{}, err
	}
	if len(matches) == 0 {
		return NoveltyResult{Verdict: NoveltyNew}, nil
	}

	top := matches[0]
	t := ThresholdsFor(category)
	result := NoveltyResult{
		Existing:   &top.Record,
		Similarity: top.Similarity,
		Candidates: matches,
	}
	if top.Similarity >= t.Redundant {
		result.Verdict = NoveltyRedundant
	} else {
		result.Verdict = NoveltyAmbiguous
	}
	return result, nil
}
