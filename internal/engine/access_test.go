package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram/internal/store"
)

func TestAccessWorkerAppliesBatchedTouches(t *testing.T) {
	e, emb := testEngine(t)
	emb.assign("frequently recalled memory", vecBase)

	res, err := e.Store(context.Background(), StoreInput{
		Content: "frequently recalled memory", Category: store.CategoryFact,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		e.access.Touch(res.ID)
	}

	require.Eventually(t, func() bool {
		r, err := e.DB.GetRecord(res.ID)
		if err != nil || r == nil {
			return false
		}
		return r.AccessCount == 3
	}, 2*time.Second, 20*time.Millisecond)

	r, err := e.DB.GetRecord(res.ID)
	require.NoError(t, err)
	assert.NotNil(t, r.LastAccessedAt)
	// spacing effect compounds per touch
	assert.InDelta(t, defaultDecayRate*spacingFactor*spacingFactor*spacingFactor, r.DecayRate, 1e-9)
}

func TestAccessWorkerFlushesOnStop(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	gw := newWriteGateway(defaultWriteTimeout)
	w := newAccessWorker(db, gw)

	r := &store.Record{
		ID:        "r-stop-flush",
		Content:   "flushed on shutdown",
		Category:  store.CategoryFact,
		DecayRate: defaultDecayRate,
	}
	require.NoError(t, db.CreateRecord(r))

	w.start()
	w.Touch(r.ID)
	w.Touch(r.ID)
	w.stop()

	got, err := db.GetRecord(r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AccessCount)
}

func TestAccessWorkerDropsWhenQueueFull(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	w := newAccessWorker(db, newWriteGateway(defaultWriteTimeout))
	// worker not started, so the queue fills and Touch must not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < accessQueueSize+100; i++ {
			w.Touch("r-any")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Touch blocked on full queue")
	}
}

func TestGetSchedulesAccessTouch(t *testing.T) {
	e, emb := testEngine(t)
	emb.assign("read through the engine", vecBase)

	res, err := e.Store(context.Background(), StoreInput{
		Content: "read through the engine", Category: store.CategoryFact,
	})
	require.NoError(t, err)

	_, err = e.Get(res.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r, err := e.DB.GetRecord(res.ID)
		return err == nil && r != nil && r.AccessCount >= 1
	}, 2*time.Second, 20*time.Millisecond)
}
