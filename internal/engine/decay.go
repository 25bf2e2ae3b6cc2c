package engine

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/engramdb/engram/internal/store"
)

// accessBonusScale converts access counts into a mild retention bonus.
const accessBonusScale = 0.1

// DecayScore computes a record's retention strength at time now:
// importance discounted exponentially by age, boosted logarithmically by
// access history, clamped to 1.
func DecayScore(r *store.Record, now time.Time) float64 {
	age := ageDaysSince(r, now)
	score := r.Importance * math.Exp(-r.DecayRate*age) *
		(1 + math.Log(1+float64(r.AccessCount))*accessBonusScale)
	if score > 1 {
		return 1
	}
	return score
}

// ShouldForget reports whether the record's decay score has fallen below
// threshold. Protected records are never forgotten.
func ShouldForget(r *store.Record, threshold float64, now time.Time) bool {
	if r.Protected {
		return false
	}
	return DecayScore(r, now) < threshold
}

// PredictForgetting returns the number of days until the record's decay
// score crosses threshold, 0 if already crossed, and (0, false) for
// records that will never be forgotten (protected or importance >= 0.9).
func PredictForgetting(r *store.Record, threshold float64, now time.Time) (days float64, ever bool) {
	if r.Protected || r.Importance >= 0.9 {
		return 0, false
	}
	if DecayScore(r, now) < threshold {
		return 0, true
	}
	if r.DecayRate <= 0 || threshold <= 0 {
		return 0, false
	}

	// Solve importance * exp(-rate*t) * bonus = threshold for t, then
	// subtract the age already elapsed.
	bonus := 1 + math.Log(1+float64(r.AccessCount))*accessBonusScale
	ratio := r.Importance * bonus / threshold
	if ratio <= 1 {
		return 0, true
	}
	total := math.Log(ratio) / r.DecayRate
	remaining := total - ageDaysSince(r, now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

func ageDaysSince(r *store.Record, now time.Time) float64 {
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

// ForgettingResult summarizes one forgetting sweep.
type ForgettingResult struct {
	Scanned   int      `json:"scanned"`
	Forgotten int      `json:"forgotten"`
	DryRun    bool     `json:"dry_run"`
	IDs       []string `json:"ids,omitempty"`
}

// RunForgetting scans up to batchSize non-protected records and deletes
// those whose decay score is below threshold. In dry-run mode it only
// reports what would be deleted. A failure on one record logs and moves
// on; cancellation stops the sweep between records.
func (e *Engine) RunForgetting(ctx context.Context, threshold float64, batchSize int, dryRun bool) (*ForgettingResult, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	candidates, err := e.DB.DecayCandidates(batchSize)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result := &ForgettingResult{DryRun: dryRun}
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		r := &candidates[i]
		result.Scanned++
		if !ShouldForget(r, threshold, now) {
			continue
		}
		if dryRun {
			log.Printf("forgetting (dry-run): would delete %s score=%.4f", r.ID, DecayScore(r, now))
			result.Forgotten++
			result.IDs = append(result.IDs, r.ID)
			continue
		}
		err := e.gateway.do(ctx, func() error {
			return e.DB.DeleteRecord(r.ID)
		})
		if err != nil {
			log.Printf("forgetting: delete %s: %v", r.ID, err)
			continue
		}
		e.Index.Remove(r.ID)
		result.Forgotten++
		result.IDs = append(result.IDs, r.ID)
	}
	return result, nil
}

// StartForgettingTimer runs the forgetting sweep on the configured
// interval until Stop is called.
func (e *Engine) StartForgettingTimer(interval time.Duration, threshold float64, batchSize int, dryRun bool) {
	if interval <= 0 {
		interval = time.Hour
	}
	sweep := func() {
		res, err := e.RunForgetting(context.Background(), threshold, batchSize, dryRun)
		if err != nil {
			log.Printf("forgetting sweep: %v", err)
		} else if res.Forgotten > 0 {
			log.Printf("forgetting sweep: removed %d of %d scanned", res.Forgotten, res.Scanned)
		}
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		sweep()
		for {
			select {
			case <-ticker.C:
				sweep()
			case <-e.stopCh:
				return
			}
		}
	}()
}
