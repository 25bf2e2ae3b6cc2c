package engine

import (
	"context"
	"fmt"
	"time"
)

// defaultWriteTimeout bounds how long a caller waits for the write slot.
const defaultWriteTimeout = 5 * time.Second

// writeGateway serializes all mutating store operations. SQLite is
// single-writer; queueing here keeps concurrent callers from fighting
// over the database lock.
type writeGateway struct {
	slot    chan struct{}
	timeout time.Duration
}

func newWriteGateway(timeout time.Duration) *writeGateway {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &writeGateway{
		slot:    make(chan struct{}, 1),
		timeout: timeout,
	}
}

// do runs fn while holding the single write slot. Waiting is bounded by
// the gateway timeout and the caller's context; both surface as
// ErrWriteConflict so callers can retry.
func (g *writeGateway) do(ctx context.Context, fn func() error) error {
	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case g.slot <- struct{}{}:
	case <-timer.C:
		return fmt.Errorf("write gateway timeout after %s: %w", g.timeout, ErrWriteConflict)
	case <-ctx.Done():
		return fmt.Errorf("write canceled: %w", ErrWriteConflict)
	}
	defer func() { <-g.slot }()

	return fn()
}
