package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

// ClassifyFunc is the orchestrator contract the runner drives.
type ClassifyFunc func(ctx context.Context, query string, catalog []FunctionEntry) (ClassificationResult, error)

// BatchOutcome is the final state of a run: the history records produced in
// input order, the per-item states, and the count of completed items.
type BatchOutcome struct {
	Records   []HistoryRecord
	Items     []BatchItem
	Completed int
}

// BatchRunner drives classifications over an ordered query list, one at a
// time. Items are visited strictly in input order and a failed item never
// aborts the run; its error is contained to that item's status.
type BatchRunner struct {
	Classify ClassifyFunc
	Catalog  []FunctionEntry

	// Delay is the rate-limiting pause after every item.
	Delay time.Duration
	// OnProgress, when set, is called after each item with the rounded
	// percentage of attempted items.
	OnProgress func(done, total, percent int)

	Now   func() time.Time
	NewID IDGenerator

	mu      sync.Mutex
	running bool
}

func NewBatchRunner(classify ClassifyFunc, catalog []FunctionEntry) *BatchRunner {
	return &BatchRunner{
		Classify: classify,
		Catalog:  catalog,
		Delay:    500 * time.Millisecond,
		Now:      time.Now,
		NewID:    NewID,
	}
}

// Run processes the queries sequentially. At most one run may be in flight
// per runner; a second concurrent call fails immediately. Classification
// requests are serialized by construction, never overlapped.
//
// Cancelling ctx stops the run before the next item; records accumulated so
// far are returned alongside ctx.Err(). There is no cross-run durability:
// items not attempted before a shutdown must be resubmitted.
func (r *BatchRunner) Run(ctx context.Context, queries []string) (BatchOutcome, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return BatchOutcome{}, fmt.Errorf("batch run already in progress")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	items := make([]BatchItem, len(queries))
	for i, q := range queries {
		items[i] = BatchItem{Query: q, Status: StatusPending}
	}
	outcome := BatchOutcome{Items: items}

	total := len(items)
	for i := range items {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		items[i].Status = StatusProcessing
		result, err := r.Classify(ctx, items[i].Query, r.Catalog)
		if err != nil {
			items[i].Status = StatusError
			log.Printf("batch item=%d/%d status=error query=%q err=%v", i+1, total, items[i].Query, err)
		} else {
			res := result
			items[i].Status = StatusCompleted
			items[i].Result = &res
			outcome.Completed++
			outcome.Records = append(outcome.Records, HistoryRecord{
				ID:        r.NewID(),
				Query:     items[i].Query,
				Timestamp: r.Now(),
				Result:    result,
			})
		}

		percent := int(math.Round(100 * float64(i+1) / float64(total)))
		if r.OnProgress != nil {
			r.OnProgress(i+1, total, percent)
		}

		if r.Delay > 0 {
			select {
			case <-time.After(r.Delay):
			case <-ctx.Done():
				return outcome, ctx.Err()
			}
		}
	}
	return outcome, nil
}
