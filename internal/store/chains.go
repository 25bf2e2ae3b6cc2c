package store

import (
	"fmt"
)

// maxChainHops caps chain traversal so a corrupted back-reference cycle
// can never spin forever.
const maxChainHops = 1000

// GetChain returns the full supersession chain containing id, ordered
// oldest to newest. Works from any member: walks supersedes_id back to the
// root, then forward via reverse lookup.
func (db *DB) GetChain(id string) ([]Record, error) {
	root, err := db.GetOriginal(id)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}

	chain := []Record{*root}
	visited := map[string]bool{root.ID: true}
	cur := root.ID
	for hops := 0; hops < maxChainHops; hops++ {
		next, err := db.SuccessorOf(cur)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return chain, nil
		}
		if visited[next.ID] {
			return nil, fmt.Errorf("chain cycle detected at %s", next.ID)
		}
		visited[next.ID] = true
		chain = append(chain, *next)
		cur = next.ID
	}
	return nil, fmt.Errorf("chain from %s exceeds %d hops", id, maxChainHops)
}

// GetOriginal returns the root of the chain containing id, or nil if the
// id is unknown.
func (db *DB) GetOriginal(id string) (*Record, error) {
	cur, err := db.GetRecord(id)
	if err != nil || cur == nil {
		return cur, err
	}

	visited := map[string]bool{cur.ID: true}
	for hops := 0; hops < maxChainHops; hops++ {
		if cur.SupersedesID == "" {
			return cur, nil
		}
		prev, err := db.GetRecord(cur.SupersedesID)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			// Dangling back-reference; treat the current node as root.
			return cur, nil
		}
		if visited[prev.ID] {
			return nil, fmt.Errorf("chain cycle detected at %s", prev.ID)
		}
		visited[prev.ID] = true
		cur = prev
	}
	return nil, fmt.Errorf("chain from %s exceeds %d hops", id, maxChainHops)
}

// GetCurrent returns the terminal (non-superseded) member of the chain
// containing id, or nil if the id is unknown.
func (db *DB) GetCurrent(id string) (*Record, error) {
	cur, err := db.GetRecord(id)
	if err != nil || cur == nil {
		return cur, err
	}

	visited := map[string]bool{cur.ID: true}
	for hops := 0; hops < maxChainHops; hops++ {
		next, err := db.SuccessorOf(cur.ID)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return cur, nil
		}
		if visited[next.ID] {
			return nil, fmt.Errorf("chain cycle detected at %s", next.ID)
		}
		visited[next.ID] = true
		cur = next
	}
	return nil, fmt.Errorf("chain from %s exceeds %d hops", id, maxChainHops)
}

// ChainLength returns the number of records in the chain containing id.
func (db *DB) ChainLength(id string) (int, error) {
	chain, err := db.GetChain(id)
	if err != nil {
		return 0, err
	}
	return len(chain), nil
}

// IsSuperseded reports whether the record has been replaced by a successor.
func (db *DB) IsSuperseded(id string) (bool, error) {
	r, err := db.GetRecord(id)
	if err != nil {
		return false, err
	}
	if r == nil {
		return false, nil
	}
	return r.SupersededAt != nil, nil
}
