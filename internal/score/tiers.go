package score

import (
	"sort"
	"time"

	"github.com/engramdb/engram/internal/store"
)

// Tier is a retrieval tier: tier1 is the highest-confidence context.
type Tier int

const (
	Tier1 Tier = iota + 1
	Tier2
	Tier3
)

func (t Tier) String() string {
	switch t {
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	default:
		return "tier3"
	}
}

func (t Tier) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// ModelSize identifies the consumer of the retrieved context. Smaller
// models get stricter cutoffs: they need higher-precision context.
type ModelSize string

const (
	ModelSmall  ModelSize = "small"
	ModelMedium ModelSize = "medium"
	ModelLarge  ModelSize = "large"
)

// TierCutoffs are the minimum URS for tier1 and tier2.
type TierCutoffs struct {
	Tier1 float64 `json:"tier1"`
	Tier2 float64 `json:"tier2"`
}

// TierConfig holds the URS blend weights and per-model-size cutoffs.
// The defaults are empirically chosen starting points, not constants the
// rest of the system depends on.
type TierConfig struct {
	SemanticWeight   float64                   `json:"semantic_weight"`
	RecencyWeight    float64                   `json:"recency_weight"`
	ImportanceWeight float64                   `json:"importance_weight"`
	CrossModalWeight float64                   `json:"cross_modal_weight"`
	Cutoffs          map[ModelSize]TierCutoffs `json:"cutoffs"`
}

// DefaultTierConfig returns the standard URS blend
// (0.35/0.25/0.20/0.20) and cutoff table.
func DefaultTierConfig() TierConfig {
	return TierConfig{
		SemanticWeight:   0.35,
		RecencyWeight:    0.25,
		ImportanceWeight: 0.20,
		CrossModalWeight: 0.20,
		Cutoffs: map[ModelSize]TierCutoffs{
			ModelSmall:  {Tier1: 0.75, Tier2: 0.50},
			ModelMedium: {Tier1: 0.65, Tier2: 0.40},
			ModelLarge:  {Tier1: 0.55, Tier2: 0.30},
		},
	}
}

// CrossModalityScore maps an external-reference count to its URS signal:
// 0 with no references, 0.5 with one, 1 with two or more.
func CrossModalityScore(references int) float64 {
	switch {
	case references <= 0:
		return 0
	case references == 1:
		return 0.5
	default:
		return 1
	}
}

// URS computes the unified relevance score from its four signals.
func (c TierConfig) URS(semantic, recency, importance, crossModal float64) float64 {
	return c.SemanticWeight*semantic +
		c.RecencyWeight*recency +
		c.ImportanceWeight*importance +
		c.CrossModalWeight*crossModal
}

// ClassifyTier places a URS value into a tier for the given model size.
// Unknown sizes use the medium cutoffs.
func (c TierConfig) ClassifyTier(urs float64, model ModelSize) Tier {
	cut, ok := c.Cutoffs[model]
	if !ok {
		cut = c.Cutoffs[ModelMedium]
	}
	switch {
	case urs >= cut.Tier1:
		return Tier1
	case urs >= cut.Tier2:
		return Tier2
	default:
		return Tier3
	}
}

// TierItem is one record in a tier classification batch.
type TierItem struct {
	Record     store.Record `json:"record"`
	Similarity float64      `json:"similarity"`
	References int          `json:"references"`
	URS        float64      `json:"urs"`
	Tier       Tier         `json:"tier"`
}

// ClassifyItems computes URS for each item, assigns tiers, and orders the
// batch tier1 first with URS descending inside each tier.
func (c TierConfig) ClassifyItems(items []TierItem, model ModelSize) []TierItem {
	now := time.Now()
	out := make([]TierItem, len(items))
	for i, it := range items {
		it.URS = c.URS(
			it.Similarity,
			RecencyFactor(&it.Record, now),
			it.Record.Importance,
			CrossModalityScore(it.References),
		)
		it.Tier = c.ClassifyTier(it.URS, model)
		out[i] = it
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		return out[i].URS > out[j].URS
	})
	return out
}
