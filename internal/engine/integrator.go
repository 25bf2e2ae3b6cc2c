package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/engramdb/engram/internal/codec"
	"github.com/engramdb/engram/internal/llm"
	"github.com/engramdb/engram/internal/store"
)

// Decision is the integrator's verdict on how new content enters memory.
type Decision string

const (
	DecisionNew        Decision = "new"
	DecisionRedundant  Decision = "redundant"
	DecisionUpdate     Decision = "update"
	DecisionCorrection Decision = "correction"
	DecisionRefinement Decision = "refinement"
)

// defaultImportance is used when the caller does not supply one.
const defaultImportance = 0.5

// defaultDecayRate is the starting decay rate for new records.
const defaultDecayRate = 0.01

// StoreInput describes one memory to store.
type StoreInput struct {
	Content    string     `json:"content"`
	Category   string     `json:"category"`
	Importance float64    `json:"importance,omitempty"`
	Protected  bool       `json:"protected,omitempty"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// StoreResult reports what the integrator did with the content. For a
// redundant submission ID names the existing record and no new record is
// created; for supersessions Superseded names the replaced record.
type StoreResult struct {
	ID         string   `json:"id"`
	Decision   Decision `json:"decision"`
	Superseded string   `json:"superseded,omitempty"`
	Similarity float64  `json:"similarity,omitempty"`
}

// Store runs the full write path: sanitize, embed, classify novelty,
// integrate. Ambiguous similarity is resolved by the reasoning client
// when configured, with a deterministic heuristic fallback.
func (e *Engine) Store(ctx context.Context, in StoreInput) (*StoreResult, error) {
	content := SanitizeContent(in.Content)
	if content == "" {
		return nil, fmt.Errorf("empty content: %w", ErrInvalidEmbedding)
	}
	if !store.ValidCategories[in.Category] {
		return nil, fmt.Errorf("unknown category %q", in.Category)
	}

	embedding, err := e.Embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w: %v", ErrCollaboratorUnavailable, err)
	}
	if err := e.checkEmbedding(embedding); err != nil {
		return nil, err
	}

	novelty, err := e.ClassifyNovelty(ctx, embedding, in.Category)
	if err != nil {
		return nil, err
	}

	switch novelty.Verdict {
	case NoveltyNew:
		return e.insertNew(ctx, in, content, embedding)
	case NoveltyRedundant:
		return e.reinforce(ctx, novelty.Existing, in.Importance, novelty.Similarity)
	default:
		return e.integrate(ctx, in, content, embedding, novelty)
	}
}

func (e *Engine) checkEmbedding(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("empty vector: %w", ErrInvalidEmbedding)
	}
	if len(embedding) != e.Index.Dimensions() {
		return fmt.Errorf("got %d dimensions, index has %d: %w",
			len(embedding), e.Index.Dimensions(), ErrInvalidEmbedding)
	}
	var nonZero bool
	for _, v := range embedding {
		if v != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		return fmt.Errorf("zero vector: %w", ErrInvalidEmbedding)
	}
	return nil
}

func (e *Engine) insertNew(ctx context.Context, in StoreInput, content string, embedding []float32) (*StoreResult, error) {
	r := e.buildRecord(in, content, embedding)
	err := e.gateway.do(ctx, func() error {
		return e.DB.CreateRecord(r)
	})
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}
	if err := e.Index.Add(r.ID, embedding); err != nil {
		log.Printf("index add %s: %v", r.ID, err)
	}
	return &StoreResult{ID: r.ID, Decision: DecisionNew}, nil
}

func (e *Engine) reinforce(ctx context.Context, existing *store.Record, importance, similarity float64) (*StoreResult, error) {
	err := e.gateway.do(ctx, func() error {
		return e.DB.BoostImportance(existing.ID, importance)
	})
	if err != nil {
		return nil, fmt.Errorf("reinforce %s: %w", existing.ID, err)
	}
	e.access.Touch(existing.ID)
	return &StoreResult{
		ID:         existing.ID,
		Decision:   DecisionRedundant,
		Similarity: similarity,
	}, nil
}

func (e *Engine) integrate(ctx context.Context, in StoreInput, content string, embedding []float32, novelty NoveltyResult) (*StoreResult, error) {
	existing := novelty.Existing
	decision := e.decide(ctx, content, existing, novelty.Similarity)

	switch decision {
	case DecisionNew:
		return e.insertNew(ctx, in, content, embedding)
	case DecisionRedundant:
		return e.reinforce(ctx, existing, in.Importance, novelty.Similarity)
	case DecisionRefinement:
		merged := e.mergeContents(ctx, existing.Content, content)
		if merged != content {
			content = merged
			// Keep the submitted embedding if the merged text cannot be
			// re-embedded; it still points at the right neighborhood.
			if vec, err := e.Embedder.Embed(ctx, merged); err == nil && e.checkEmbedding(vec) == nil {
				embedding = vec
			} else if err != nil {
				log.Printf("re-embed merged content: %v", err)
			}
		}
	}

	successor := e.buildRecord(in, content, embedding)
	successor.SupersedesID = existing.ID
	err := e.gateway.do(ctx, func() error {
		return e.DB.Supersede(existing.ID, successor, string(decision))
	})
	if err != nil {
		return nil, fmt.Errorf("supersede %s: %w", existing.ID, err)
	}
	e.Index.Remove(existing.ID)
	if err := e.Index.Add(successor.ID, embedding); err != nil {
		log.Printf("index add %s: %v", successor.ID, err)
	}
	return &StoreResult{
		ID:         successor.ID,
		Decision:   decision,
		Superseded: existing.ID,
		Similarity: novelty.Similarity,
	}, nil
}

func (e *Engine) buildRecord(in StoreInput, content string, embedding []float32) *store.Record {
	importance := in.Importance
	if importance <= 0 {
		importance = defaultImportance
	}
	if importance > 1 {
		importance = 1
	}
	int8Code := codec.QuantizeInt8(embedding)
	return &store.Record{
		ID:              newID(),
		Content:         content,
		Category:        in.Category,
		Importance:      importance,
		Embedding:       embedding,
		EmbeddingInt8:   int8Code,
		EmbeddingBinary: codec.QuantizeBinary(int8Code),
		DecayRate:       defaultDecayRate,
		Protected:       in.Protected,
		ValidFrom:       in.ValidFrom,
		ValidUntil:      in.ValidUntil,
	}
}

// decide resolves an ambiguous-similarity submission to a decision. The
// reasoning client is consulted when configured; any failure falls back
// to the content heuristic so the write path never depends on it.
func (e *Engine) decide(ctx context.Context, content string, existing *store.Record, similarity float64) Decision {
	if e.LLM != nil {
		if d, ok := e.decideLLM(ctx, content, existing); ok {
			return d
		}
	}
	return heuristicDecision(content, existing.Content, similarity, existing.Category)
}

func (e *Engine) decideLLM(ctx context.Context, content string, existing *store.Record) (Decision, bool) {
	resp, err := e.LLM.Complete(ctx, llm.DecidePrompt(content, existing.Content, existing.Category))
	if err != nil {
		log.Printf("decide via llm: %v", err)
		return "", false
	}
	var parsed struct {
		Decision string `json:"decision"`
	}
	text := strings.TrimSpace(resp.Content)
	if i := strings.Index(text, "{"); i >= 0 {
		text = text[i:]
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		log.Printf("decide via llm: unparseable response: %v", err)
		return "", false
	}
	switch d := Decision(parsed.Decision); d {
	case DecisionNew, DecisionRedundant, DecisionUpdate, DecisionCorrection, DecisionRefinement:
		return d, true
	default:
		log.Printf("decide via llm: unknown decision %q", parsed.Decision)
		return "", false
	}
}

// heuristicDecision is the deterministic fallback: content that extends
// the existing text is a refinement, near-duplicates are redundant, and
// everything else is treated as an update.
func heuristicDecision(newContent, existingContent string, similarity float64, category string) Decision {
	if containsNormalized(newContent, existingContent) {
		return DecisionRefinement
	}
	if similarity >= ThresholdsFor(category).Redundant {
		return DecisionRedundant
	}
	return DecisionUpdate
}

func containsNormalized(haystack, needle string) bool {
	h := strings.ToLower(strings.Join(strings.Fields(haystack), " "))
	n := strings.ToLower(strings.Join(strings.Fields(needle), " "))
	return n != "" && h != n && strings.Contains(h, n)
}

// mergeContents combines refined content with the text it refines,
// preferring the reasoning client and falling back to concatenation.
func (e *Engine) mergeContents(ctx context.Context, older, newer string) string {
	if e.LLM != nil {
		resp, err := e.LLM.Complete(ctx, llm.MergePrompt(older, newer))
		if err == nil && strings.TrimSpace(resp.Content) != "" {
			return SanitizeContent(resp.Content)
		}
		if err != nil {
			log.Printf("merge via llm: %v", err)
		}
	}
	if containsNormalized(newer, older) {
		return newer
	}
	return older + "\n" + newer
}

// BulkResult reports the outcome for one item of a bulk store.
type BulkResult struct {
	Index  int          `json:"index"`
	Result *StoreResult `json:"result,omitempty"`
	Err    string       `json:"error,omitempty"`
}

// BulkStore stores each input in order, reporting per-item outcomes
// rather than aborting on the first failure. Cancellation stops between
// items, leaving already-stored records intact.
func (e *Engine) BulkStore(ctx context.Context, inputs []StoreInput) ([]BulkResult, error) {
	results := make([]BulkResult, 0, len(inputs))
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := e.Store(ctx, in)
		br := BulkResult{Index: i, Result: res}
		if err != nil {
			br.Err = err.Error()
		}
		results = append(results, br)
	}
	return results, nil
}
