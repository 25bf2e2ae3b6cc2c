package index

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"sync"
)

// HNSW hyperparameters. These match the defaults the index has always been
// tuned with: connectivity 16, construction expansion 128, search expansion 64.
const (
	DefaultConnectivity    = 16
	DefaultExpansionBuild  = 128
	DefaultExpansionSearch = 64
)

// HNSW is a hierarchical navigable small world graph over int8 vector codes.
// Reads take the read lock and can run concurrently; Add and Remove take the
// write lock. Remove tombstones a node without unlinking it, so the graph
// stays navigable and removed ids simply never surface in results.
type HNSW struct {
	mu       sync.RWMutex
	dims     int
	m        int
	efBuild  int
	efSearch int
	ml       float64

	nodes     []hnswNode
	byID      map[string]int
	tombstone map[int]bool
	entry     int
	maxLevel  int
	rng       *rand.Rand
}

type hnswNode struct {
	id        string
	code      []byte
	norm      float64
	neighbors [][]int // per level, level 0 first
}

// NewHNSW creates an empty graph for vectors of the given dimensionality.
func NewHNSW(dims int) *HNSW {
	return &HNSW{
		dims:      dims,
		m:         DefaultConnectivity,
		efBuild:   DefaultExpansionBuild,
		efSearch:  DefaultExpansionSearch,
		ml:        1 / math.Log(float64(DefaultConnectivity)),
		byID:      make(map[string]int),
		tombstone: make(map[int]bool),
		entry:     -1,
		rng:       rand.New(rand.NewSource(1)),
	}
}

func int8Norm(code []byte) float64 {
	var sum int64
	for _, b := range code {
		v := int64(int8(b))
		sum += v * v
	}
	return math.Sqrt(float64(sum))
}

// similarity is cosine over int8 codes with precomputed norms.
func (h *HNSW) similarity(a, b *hnswNode) float64 {
	return dotSim(a.code, a.norm, b.code, b.norm)
}

func dotSim(a []byte, normA float64, b []byte, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot int64
	for i := range a {
		dot += int64(int8(a[i])) * int64(int8(b[i]))
	}
	return float64(dot) / (normA * normB)
}

// Add inserts a vector, or replaces the code of an already-indexed id.
// Re-adding an id clears any tombstone on it.
func (h *HNSW) Add(id string, code []byte) error {
	if len(code) != h.dims {
		return fmt.Errorf("%w: index dims %d, vector dims %d", ErrDimensionMismatch, h.dims, len(code))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if idx, ok := h.byID[id]; ok {
		h.nodes[idx].code = append([]byte(nil), code...)
		h.nodes[idx].norm = int8Norm(code)
		delete(h.tombstone, idx)
		return nil
	}

	level := h.randomLevel()
	node := hnswNode{
		id:        id,
		code:      append([]byte(nil), code...),
		norm:      int8Norm(code),
		neighbors: make([][]int, level+1),
	}
	idx := len(h.nodes)
	h.nodes = append(h.nodes, node)
	h.byID[id] = idx

	if h.entry < 0 {
		h.entry = idx
		h.maxLevel = level
		return nil
	}

	cur := h.entry
	// Greedy descent through layers above the new node's level.
	for l := h.maxLevel; l > level; l-- {
		cur = h.greedyClosest(&h.nodes[idx], cur, l)
	}

	// Connect on each layer from min(level, maxLevel) down to 0.
	top := level
	if top > h.maxLevel {
		top = h.maxLevel
	}
	for l := top; l >= 0; l-- {
		candidates := h.searchLayer(&h.nodes[idx], cur, h.efBuild, l)
		neighbors := h.selectNeighbors(candidates, h.maxNeighbors(l))
		h.nodes[idx].neighbors[l] = neighbors
		for _, n := range neighbors {
			h.link(n, idx, l)
		}
		if len(candidates) > 0 {
			cur = candidates[0].idx
		}
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entry = idx
	}
	return nil
}

// Remove tombstones an id. The node stays in the graph for routing but is
// excluded from all subsequent search results.
func (h *HNSW) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if idx, ok := h.byID[id]; ok {
		h.tombstone[idx] = true
	}
}

// Contains reports whether an id is indexed and not tombstoned.
func (h *HNSW) Contains(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	idx, ok := h.byID[id]
	return ok && !h.tombstone[idx]
}

// Len returns the number of live (non-tombstoned) vectors.
func (h *HNSW) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes) - len(h.tombstone)
}

// Search returns the k nearest live vectors to the query, most similar
// first. Bad input yields an empty result, never an error.
func (h *HNSW) Search(query []byte, k int) []Match {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(query) != h.dims || k <= 0 || h.entry < 0 {
		return nil
	}

	q := hnswNode{code: query, norm: int8Norm(query)}
	cur := h.entry
	for l := h.maxLevel; l > 0; l-- {
		cur = h.greedyClosest(&q, cur, l)
	}

	ef := h.efSearch
	if ef < k {
		ef = k
	}
	candidates := h.searchLayer(&q, cur, ef, 0)

	matches := make([]Match, 0, k)
	for _, c := range candidates {
		if h.tombstone[c.idx] {
			continue
		}
		matches = append(matches, Match{ID: h.nodes[c.idx].id, Similarity: c.sim})
		if len(matches) == k {
			break
		}
	}
	return matches
}

func (h *HNSW) randomLevel() int {
	return int(-math.Log(h.rng.Float64()) * h.ml)
}

func (h *HNSW) maxNeighbors(level int) int {
	if level == 0 {
		return h.m * 2
	}
	return h.m
}

// greedyClosest walks a single layer toward the query until no neighbor
// improves on the current node.
func (h *HNSW) greedyClosest(q *hnswNode, start, level int) int {
	cur := start
	curSim := h.similarity(q, &h.nodes[cur])
	for {
		improved := false
		for _, n := range h.neighborsAt(cur, level) {
			if sim := h.similarity(q, &h.nodes[n]); sim > curSim {
				cur, curSim = n, sim
				improved = true
			}
		}
		if !improved {
			return cur
		}
	}
}

func (h *HNSW) neighborsAt(idx, level int) []int {
	if level >= len(h.nodes[idx].neighbors) {
		return nil
	}
	return h.nodes[idx].neighbors[level]
}

type scoredIdx struct {
	idx int
	sim float64
}

// searchLayer is the beam search over one layer. Returns up to ef nodes
// sorted by similarity descending.
func (h *HNSW) searchLayer(q *hnswNode, entry, ef, level int) []scoredIdx {
	visited := map[int]bool{entry: true}
	entrySim := h.similarity(q, &h.nodes[entry])

	candidates := &simHeap{max: true}
	results := &simHeap{max: false}
	heap.Push(candidates, scoredIdx{entry, entrySim})
	heap.Push(results, scoredIdx{entry, entrySim})

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(scoredIdx)
		if results.Len() >= ef && c.sim < results.peek().sim {
			break
		}
		for _, n := range h.neighborsAt(c.idx, level) {
			if visited[n] {
				continue
			}
			visited[n] = true
			sim := h.similarity(q, &h.nodes[n])
			if results.Len() < ef || sim > results.peek().sim {
				heap.Push(candidates, scoredIdx{n, sim})
				heap.Push(results, scoredIdx{n, sim})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]scoredIdx, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(scoredIdx)
	}
	return out
}

// selectNeighbors keeps the top-n candidates by similarity. Candidates
// arrive sorted descending from searchLayer.
func (h *HNSW) selectNeighbors(candidates []scoredIdx, n int) []int {
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]int, len(candidates))
	for i, c := range candidates {
		out[i] = c.idx
	}
	return out
}

// link adds dst to src's neighbor list at the given level, shrinking the
// list to the level's cap by dropping the least similar entry.
func (h *HNSW) link(src, dst, level int) {
	if level >= len(h.nodes[src].neighbors) {
		return
	}
	limit := h.maxNeighbors(level)
	list := append(h.nodes[src].neighbors[level], dst)
	if len(list) > limit {
		worst, worstSim := -1, math.Inf(1)
		for i, n := range list {
			if sim := h.similarity(&h.nodes[src], &h.nodes[n]); sim < worstSim {
				worst, worstSim = i, sim
			}
		}
		list = append(list[:worst], list[worst+1:]...)
	}
	h.nodes[src].neighbors[level] = list
}

// simHeap is a heap of scoredIdx; max selects max-heap or min-heap order.
type simHeap struct {
	items []scoredIdx
	max   bool
}

func (s *simHeap) Len() int { return len(s.items) }
func (s *simHeap) Less(i, j int) bool {
	if s.max {
		return s.items[i].sim > s.items[j].sim
	}
	return s.items[i].sim < s.items[j].sim
}
func (s *simHeap) Swap(i, j int)      { s.items[i], s.items[j] = s.items[j], s.items[i] }
func (s *simHeap) Push(x any)         { s.items = append(s.items, x.(scoredIdx)) }
func (s *simHeap) Pop() any {
	last := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return last
}
func (s *simHeap) peek() scoredIdx { return s.items[0] }

// Save persists the graph to a file.
// Format: [dims:u32][count:u32] then per live node
// [idLen:u16][id][code:dims bytes]. Only live nodes are written, so a
// save/load cycle compacts tombstones away.
func (h *HNSW) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("hnsw: save: %w", err)
	}
	defer f.Close()

	live := len(h.nodes) - len(h.tombstone)
	if err := binary.Write(f, binary.LittleEndian, uint32(h.dims)); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(live)); err != nil {
		return err
	}
	for idx := range h.nodes {
		if h.tombstone[idx] {
			continue
		}
		n := &h.nodes[idx]
		if err := binary.Write(f, binary.LittleEndian, uint16(len(n.id))); err != nil {
			return err
		}
		if _, err := f.Write([]byte(n.id)); err != nil {
			return err
		}
		if _, err := f.Write(n.code); err != nil {
			return err
		}
	}
	return nil
}

// LoadHNSW reads a saved graph and rebuilds its link structure.
func LoadHNSW(path string) (*HNSW, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hnsw: load: %w", err)
	}
	defer f.Close()

	var dims, count uint32
	if err := binary.Read(f, binary.LittleEndian, &dims); err != nil {
		return nil, fmt.Errorf("hnsw: load header: %w", err)
	}
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("hnsw: load header: %w", err)
	}

	h := NewHNSW(int(dims))
	for i := uint32(0); i < count; i++ {
		var idLen uint16
		if err := binary.Read(f, binary.LittleEndian, &idLen); err != nil {
			return nil, fmt.Errorf("hnsw: load entry %d: %w", i, err)
		}
		idBuf := make([]byte, idLen)
		if _, err := io.ReadFull(f, idBuf); err != nil {
			return nil, fmt.Errorf("hnsw: load entry %d: %w", i, err)
		}
		code := make([]byte, dims)
		if _, err := io.ReadFull(f, code); err != nil {
			return nil, fmt.Errorf("hnsw: load entry %d: %w", i, err)
		}
		if err := h.Add(string(idBuf), code); err != nil {
			return nil, err
		}
	}
	return h, nil
}
