// Package index holds the quantized vector codes for every record and
// offers three search paths over them: a full int8 scan, a binary
// prefilter with int8 rescoring, and an approximate HNSW graph. A strategy
// selector picks the path from live corpus size.
package index

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/engramdb/engram/internal/codec"
)

// ErrDimensionMismatch is returned by Add when a vector does not match the
// index dimensionality. Search paths never return it; they yield empty
// results instead.
var ErrDimensionMismatch = errors.New("index: vector dimension mismatch")

// Match is one search hit.
type Match struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

// Index maps record ids to their int8 and binary codes. Mutations take the
// write lock; searches take the read lock and are never blocked by a
// concurrent Rebuild, which swaps a fresh graph in atomically.
type Index struct {
	mu    sync.RWMutex
	dims  int
	codes map[string][]byte
	bins  map[string][]byte

	graph    atomic.Pointer[HNSW]
	override Strategy
}

// New creates an empty index for embeddings of the given dimensionality.
func New(dims int) *Index {
	return &Index{
		dims:  dims,
		codes: make(map[string][]byte),
		bins:  make(map[string][]byte),
	}
}

// SetStrategyOverride forces every search onto one path. Empty restores
// automatic selection.
func (ix *Index) SetStrategyOverride(s Strategy) {
	ix.mu.Lock()
	ix.override = s
	ix.mu.Unlock()
}

// Add quantizes an embedding and indexes it under id. Re-adding an id
// replaces its codes.
func (ix *Index) Add(id string, embedding []float32) error {
	if len(embedding) != ix.dims {
		return ErrDimensionMismatch
	}
	code := codec.QuantizeInt8(embedding)
	return ix.AddCodes(id, code, codec.QuantizeBinary(code))
}

// AddCodes indexes pre-quantized codes, as loaded from the store at startup.
func (ix *Index) AddCodes(id string, int8Code, binCode []byte) error {
	if len(int8Code) != ix.dims {
		return ErrDimensionMismatch
	}
	ix.mu.Lock()
	ix.codes[id] = int8Code
	ix.bins[id] = binCode
	ix.mu.Unlock()

	if g := ix.graph.Load(); g != nil {
		return g.Add(id, int8Code)
	}
	return nil
}

// Remove drops an id from the scan maps and tombstones it in the graph.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	delete(ix.codes, id)
	delete(ix.bins, id)
	ix.mu.Unlock()

	if g := ix.graph.Load(); g != nil {
		g.Remove(id)
	}
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.codes)
}

// Dimensions returns the index dimensionality.
func (ix *Index) Dimensions() int { return ix.dims }

// StrategyInUse reports the path the next automatic search would take.
func (ix *Index) StrategyInUse() Strategy {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return DetermineStrategy(len(ix.codes), ix.override, ix.graphReady())
}

func (ix *Index) graphReady() bool {
	g := ix.graph.Load()
	return g != nil && g.Len() > 0
}

// WantsGraph reports whether the corpus is large enough that automatic
// selection would use the graph index once built.
func (ix *Index) WantsGraph() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.codes) >= binaryRescoreCeiling
}

// GraphSize returns the number of live vectors in the built graph, or 0
// when no graph exists.
func (ix *Index) GraphSize() int {
	if g := ix.graph.Load(); g != nil {
		return g.Len()
	}
	return 0
}

// Search returns up to k matches ordered by similarity descending. It never
// returns an error: an empty corpus, a dimension mismatch, or a zero query
// all yield defined (empty or zero-scored) results.
func (ix *Index) Search(query []float32, k int) []Match {
	if len(query) != ix.dims || k <= 0 {
		return nil
	}
	code := codec.QuantizeInt8(query)

	ix.mu.RLock()
	strategy := DetermineStrategy(len(ix.codes), ix.override, ix.graphReady())
	ix.mu.RUnlock()

	switch strategy {
	case StrategyHNSW:
		if g := ix.graph.Load(); g != nil {
			if matches := g.Search(code, k); len(matches) > 0 {
				return matches
			}
		}
		return ix.binaryRescore(code, k)
	case StrategyBinaryRescore:
		return ix.binaryRescore(code, k)
	default:
		return ix.exactScan(code, k)
	}
}

// exactScan is the full int8 cosine pass.
func (ix *Index) exactScan(code []byte, k int) []Match {
	ix.mu.RLock()
	matches := make([]Match, 0, len(ix.codes))
	for id, c := range ix.codes {
		matches = append(matches, Match{ID: id, Similarity: codec.CosineInt8(code, c)})
	}
	ix.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// binaryRescore keeps a Hamming-ranked candidate superset, then rescores it
// with int8 cosine. The prefilter is cheap enough to run over the whole
// corpus; the expensive cosine only touches the survivors.
func (ix *Index) binaryRescore(code []byte, k int) []Match {
	binCode := codec.QuantizeBinary(code)

	keep := k * 4
	if keep < 64 {
		keep = 64
	}

	ix.mu.RLock()
	prefilter := make([]Match, 0, len(ix.bins))
	for id, b := range ix.bins {
		prefilter = append(prefilter, Match{ID: id, Similarity: codec.HammingSimilarity(binCode, b, ix.dims)})
	}
	sort.Slice(prefilter, func(i, j int) bool { return prefilter[i].Similarity > prefilter[j].Similarity })
	if len(prefilter) > keep {
		prefilter = prefilter[:keep]
	}

	matches := make([]Match, 0, len(prefilter))
	for _, m := range prefilter {
		matches = append(matches, Match{ID: m.ID, Similarity: codec.CosineInt8(code, ix.codes[m.ID])})
	}
	ix.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Rebuild constructs a fresh graph from the current codes and swaps it in.
// Concurrent searches keep reading the old graph until the swap; they never
// observe a partially built one.
func (ix *Index) Rebuild() error {
	ix.mu.RLock()
	snapshot := make(map[string][]byte, len(ix.codes))
	for id, c := range ix.codes {
		snapshot[id] = c
	}
	ix.mu.RUnlock()

	g := NewHNSW(ix.dims)
	for id, c := range snapshot {
		if err := g.Add(id, c); err != nil {
			return err
		}
	}
	ix.graph.Store(g)
	return nil
}

// SaveGraph persists the graph index, if one has been built.
func (ix *Index) SaveGraph(path string) error {
	g := ix.graph.Load()
	if g == nil {
		return nil
	}
	return g.Save(path)
}

// LoadGraph restores a previously saved graph index.
func (ix *Index) LoadGraph(path string) error {
	g, err := LoadHNSW(path)
	if err != nil {
		return err
	}
	ix.graph.Store(g)
	return nil
}
