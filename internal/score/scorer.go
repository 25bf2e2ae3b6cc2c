// Package score fuses per-record signals (vector similarity, recency,
// access frequency, importance, external graph relevance) into a single
// relevance number, and classifies results into retrieval tiers.
package score

import (
	"math"
	"sort"
	"time"

	"github.com/engramdb/engram/internal/codec"
	"github.com/engramdb/engram/internal/store"
)

// Weights controls the blend of signals in Score. They are expected to sum
// to roughly 1 so scores stay in [0,1]; Score clamps regardless.
type Weights struct {
	Semantic   float64 `json:"semantic"`
	Recency    float64 `json:"recency"`
	Importance float64 `json:"importance"`
	Access     float64 `json:"access"`
	Graph      float64 `json:"graph"`
}

// Weight presets, keyed by retrieval intent.
var presets = map[string]Weights{
	"balanced":  {Semantic: 0.5, Recency: 0.2, Importance: 0.2, Access: 0.1},
	"semantic":  {Semantic: 0.8, Recency: 0.1, Importance: 0.1, Access: 0},
	"recent":    {Semantic: 0.3, Recency: 0.5, Importance: 0.1, Access: 0.1},
	"important": {Semantic: 0.3, Recency: 0.1, Importance: 0.5, Access: 0.1},
	"popular":   {Semantic: 0.3, Recency: 0.1, Importance: 0.1, Access: 0.5},
}

// Preset returns a named weight preset, falling back to balanced.
func Preset(name string) Weights {
	if w, ok := presets[name]; ok {
		return w
	}
	return presets["balanced"]
}

// recencyDecayRate is the exponent applied to days since last access.
const recencyDecayRate = 0.1

// ageDays measures a record's age from its last access, or insertion time
// for never-read records.
func ageDays(r *store.Record, now time.Time) float64 {
	ref := r.InsertedAt
	if r.LastAccessedAt != nil {
		ref = *r.LastAccessedAt
	}
	days := now.Sub(ref).Hours() / 24
	if days < 0 {
		return 0
	}
	return days
}

// RecencyFactor is exp(-0.1 * age_days), 1 for just-touched records.
func RecencyFactor(r *store.Record, now time.Time) float64 {
	return math.Exp(-recencyDecayRate * ageDays(r, now))
}

// AccessFactor saturates at 1 around e^5-1 accesses.
func AccessFactor(count int) float64 {
	return math.Min(1, math.Log(1+float64(count))/5)
}

// Semantic is the cosine similarity clamped to [0,1]. An absent query
// contributes 0.
func Semantic(r *store.Record, query []float32) float64 {
	if len(query) == 0 {
		return 0
	}
	sim := codec.CosineFloat(r.Embedding, query)
	if sim < 0 {
		return 0
	}
	return sim
}

// Score computes the hybrid relevance of a record against a query.
// graphRelevance is supplied by the external knowledge-graph subsystem and
// defaults to 0. The result is clamped to [0,1].
func Score(r *store.Record, query []float32, w Weights, now time.Time, graphRelevance float64) float64 {
	s := w.Semantic*Semantic(r, query) +
		w.Recency*RecencyFactor(r, now) +
		w.Access*AccessFactor(r.AccessCount) +
		w.Importance*r.Importance +
		w.Graph*graphRelevance
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Ranked pairs a record with its computed score.
type Ranked struct {
	Record store.Record `json:"record"`
	Score  float64      `json:"score"`
}

// Rank scores records against a query and returns them sorted by score
// descending. graph supplies per-id external relevance; nil means 0.
func Rank(records []store.Record, query []float32, w Weights, graph map[string]float64) []Ranked {
	now := time.Now()
	out := make([]Ranked, len(records))
	for i, r := range records {
		out[i] = Ranked{Record: r, Score: Score(&r, query, w, now, graph[r.ID])}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
