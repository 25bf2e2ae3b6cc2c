package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/engramdb/engram/internal/index"
	"github.com/engramdb/engram/internal/llm"
	"github.com/engramdb/engram/internal/score"
	"github.com/engramdb/engram/internal/store"
)

// Engine orchestrates memory storage, retrieval, integration, and decay.
type Engine struct {
	DB       *store.DB
	LLM      llm.Client
	Embedder Embedder
	Index    *index.Index

	Weights   score.Weights
	Tiers     score.TierConfig
	ModelSize score.ModelSize

	// GraphPath, when set, is where the HNSW graph is persisted between
	// runs. Empty disables graph persistence.
	GraphPath string

	gateway  *writeGateway
	access   *accessWorker
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates an Engine. The LLM client may be nil, in which case the
// integrator uses its heuristic fallback for ambiguous content.
func New(db *store.DB, client llm.Client, emb Embedder) *Engine {
	e := &Engine{
		DB:        db,
		LLM:       client,
		Embedder:  emb,
		Index:     index.New(emb.Dimensions()),
		Weights:   score.Preset("balanced"),
		Tiers:     score.DefaultTierConfig(),
		ModelSize: score.ModelMedium,
		gateway:   newWriteGateway(defaultWriteTimeout),
		stopCh:    make(chan struct{}),
	}
	e.access = newAccessWorker(db, e.gateway)
	return e
}

// LoadIndex hydrates the vector index from the stored quantized codes
// and builds the graph when the corpus is large enough to use it.
func (e *Engine) LoadIndex() error {
	codes, err := e.DB.ActiveIndexCodes()
	if err != nil {
		return fmt.Errorf("load index codes: %w", err)
	}
	for _, c := range codes {
		if err := e.Index.AddCodes(c.ID, c.Int8, c.Binary); err != nil {
			log.Printf("load index: skip %s: %v", c.ID, err)
		}
	}
	if e.Index.WantsGraph() {
		if e.GraphPath != "" {
			if err := e.Index.LoadGraph(e.GraphPath); err == nil && e.Index.GraphSize() >= e.Index.Len() {
				return nil
			}
		}
		if err := e.Index.Rebuild(); err != nil {
			log.Printf("load index: graph build failed, falling back: %v", err)
		}
	}
	return nil
}

// Start launches the background workers.
func (e *Engine) Start() {
	e.access.start()
}

// Stop shuts down background goroutines, flushing pending access updates,
// and persists the graph index when a path is configured. Safe to call
// more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		e.access.stop()
		if e.GraphPath != "" {
			if err := e.Index.SaveGraph(e.GraphPath); err != nil {
				log.Printf("save index graph: %v", err)
			}
		}
	})
}

// Get returns a record by id and schedules an access touch for it.
func (e *Engine) Get(id string) (*store.Record, error) {
	r, err := e.DB.GetRecord(id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	e.access.Touch(id)
	return r, nil
}

// GetChain returns the full supersession chain containing id, oldest
// first.
func (e *Engine) GetChain(id string) ([]store.Record, error) {
	chain, err := e.DB.GetChain(id)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("chain of %s: %w", id, ErrNotFound)
	}
	return chain, nil
}

// GetCurrent returns the terminal record of the chain containing id.
func (e *Engine) GetCurrent(id string) (*store.Record, error) {
	r, err := e.DB.GetCurrent(id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("current of %s: %w", id, ErrNotFound)
	}
	return r, nil
}

// GetOriginal returns the root record of the chain containing id.
func (e *Engine) GetOriginal(id string) (*store.Record, error) {
	r, err := e.DB.GetOriginal(id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("original of %s: %w", id, ErrNotFound)
	}
	return r, nil
}

// MarkProtected sets or clears the protected flag on a record.
func (e *Engine) MarkProtected(ctx context.Context, id string, protected bool) error {
	return e.gateway.do(ctx, func() error {
		err := e.DB.SetProtected(id, protected)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("protect %s: %w", id, ErrNotFound)
		}
		return err
	})
}

// Delete removes a record entirely. Children pointing at it have their
// back-references cleared, splitting any chain it was part of.
func (e *Engine) Delete(ctx context.Context, id string) error {
	r, err := e.DB.GetRecord(id)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	err = e.gateway.do(ctx, func() error {
		return e.DB.DeleteRecord(id)
	})
	if err != nil {
		return err
	}
	e.Index.Remove(id)
	return nil
}

// EngineStats extends store counts with index and decay health.
type EngineStats struct {
	store.Stats
	IndexStrategy  string  `json:"index_strategy"`
	IndexedVectors int     `json:"indexed_vectors"`
	AvgDecayScore  float64 `json:"avg_decay_score"`
}

// Stats reports record counts, the index strategy in use, and the mean
// decay score across active records.
func (e *Engine) Stats() (*EngineStats, error) {
	base, err := e.DB.Stats()
	if err != nil {
		return nil, err
	}
	s := &EngineStats{
		Stats:          *base,
		IndexStrategy:  string(e.Index.StrategyInUse()),
		IndexedVectors: e.Index.Len(),
	}

	active, err := e.DB.AllActive()
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		now := time.Now()
		var sum float64
		for i := range active {
			sum += DecayScore(&active[i], now)
		}
		s.AvgDecayScore = sum / float64(len(active))
	}
	return s, nil
}

func newID() string {
	return ulid.Make().String()
}
