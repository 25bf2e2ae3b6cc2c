package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/engramdb/engram/internal/score"
	"github.com/engramdb/engram/internal/store"
)

const defaultSearchLimit = 10

// SearchOpts tunes one search call. Zero values mean balanced preset,
// the engine's model size, no category filter, and the default limit.
type SearchOpts struct {
	Limit     int
	Category  string
	Preset    string
	ModelSize score.ModelSize
	AsOf      *time.Time
	Graph     map[string]float64
}

func (o SearchOpts) limit() int {
	if o.Limit <= 0 {
		return defaultSearchLimit
	}
	return o.Limit
}

// SearchResult is one ranked record with its scoring breakdown.
type SearchResult struct {
	Record     store.Record `json:"record"`
	Similarity float64      `json:"similarity"`
	Score      float64      `json:"score"`
	URS        float64      `json:"urs"`
	Tier       score.Tier   `json:"tier"`
}

// Search embeds the query, retrieves candidates through the strategy
// selector, ranks them with the hybrid scorer, and classifies tiers.
// A blank query returns no results rather than an error; an unreachable
// embedder fails explicitly.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOpts) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	embedding, err := e.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w: %v", ErrCollaboratorUnavailable, err)
	}

	asOf := time.Now()
	if opts.AsOf != nil {
		asOf = *opts.AsOf
	}

	limit := opts.limit()
	// Over-fetch so post-filters (category, validity) don't starve the
	// result set.
	matches := e.Index.Search(embedding, limit*3)
	if len(matches) == 0 {
		return nil, nil
	}

	similarity := make(map[string]float64, len(matches))
	var records []store.Record
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := e.DB.GetRecord(m.ID)
		if err != nil {
			log.Printf("search: load %s: %v", m.ID, err)
			continue
		}
		if r == nil || !r.Active() {
			continue
		}
		if opts.Category != "" && r.Category != opts.Category {
			continue
		}
		if !r.ValidAt(asOf) {
			continue
		}
		similarity[r.ID] = m.Similarity
		records = append(records, *r)
	}
	if len(records) == 0 {
		return nil, nil
	}

	weights := e.Weights
	if opts.Preset != "" {
		weights = score.Preset(opts.Preset)
	}
	ranked := score.Rank(records, embedding, weights, opts.Graph)

	items := make([]score.TierItem, len(ranked))
	for i, r := range ranked {
		items[i] = score.TierItem{
			Record:     r.Record,
			Similarity: similarity[r.Record.ID],
			References: countReferences(&r.Record, opts.Graph),
		}
	}
	model := opts.ModelSize
	if model == "" {
		model = e.ModelSize
	}
	items = e.Tiers.ClassifyItems(items, model)

	scoreByID := make(map[string]float64, len(ranked))
	for _, r := range ranked {
		scoreByID[r.Record.ID] = r.Score
	}

	if len(items) > limit {
		items = items[:limit]
	}
	results := make([]SearchResult, len(items))
	for i, it := range items {
		results[i] = SearchResult{
			Record:     it.Record,
			Similarity: it.Similarity,
			Score:      scoreByID[it.Record.ID],
			URS:        it.URS,
			Tier:       it.Tier,
		}
		e.access.Touch(it.Record.ID)
	}
	return results, nil
}

// countReferences infers cross-modality signal from what the record is
// linked to: its supersession chain and any external graph relevance.
func countReferences(r *store.Record, graph map[string]float64) int {
	refs := 0
	if r.SupersedesID != "" {
		refs++
	}
	if graph[r.ID] > 0 {
		refs++
	}
	return refs
}
