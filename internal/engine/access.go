package engine

import (
	"context"
	"log"
	"time"

	"github.com/engramdb/engram/internal/store"
)

const (
	// accessFlushInterval batches access touches so reads never wait on
	// a write.
	accessFlushInterval = 50 * time.Millisecond

	// accessQueueSize bounds the pending-touch channel. When full,
	// touches are dropped rather than blocking the read path.
	accessQueueSize = 1024

	// spacingFactor shrinks decay_rate on every recall.
	spacingFactor = 0.95

	// minDecayRate floors the spacing effect so records never become
	// effectively permanent through access alone.
	minDecayRate = 1e-4
)

// accessWorker coalesces access events per record id and applies them to
// the store in batches on a short timer.
type accessWorker struct {
	db      *store.DB
	gateway *writeGateway
	touches chan string
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newAccessWorker(db *store.DB, gateway *writeGateway) *accessWorker {
	return &accessWorker{
		db:      db,
		gateway: gateway,
		touches: make(chan string, accessQueueSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Touch schedules an access update for id. It never blocks: if the
// queue is full the touch is dropped, which only delays the spacing
// effect by one read.
func (w *accessWorker) Touch(id string) {
	select {
	case w.touches <- id:
	default:
	}
}

func (w *accessWorker) start() {
	go w.run()
}

// stop flushes any pending touches and waits for the worker to exit.
func (w *accessWorker) stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *accessWorker) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(accessFlushInterval)
	defer ticker.Stop()

	pending := make(map[string]int)
	for {
		select {
		case id := <-w.touches:
			pending[id]++
		case <-ticker.C:
			w.flush(pending)
			pending = make(map[string]int)
		case <-w.stopCh:
			w.drain(pending)
			w.flush(pending)
			return
		}
	}
}

func (w *accessWorker) drain(pending map[string]int) {
	for {
		select {
		case id := <-w.touches:
			pending[id]++
		default:
			return
		}
	}
}

func (w *accessWorker) flush(pending map[string]int) {
	if len(pending) == 0 {
		return
	}
	now := time.Now()
	err := w.gateway.do(context.Background(), func() error {
		for id, n := range pending {
			if err := w.db.ApplyAccess(id, n, now, spacingFactor, minDecayRate); err != nil {
				log.Printf("access flush %s: %v", id, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("access flush: %v", err)
	}
}
