package main

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

func okClassify(score float64) ClassifyFunc {
	return func(ctx context.Context, query string, catalog []FunctionEntry) (ClassificationResult, error) {
		return ClassificationResult{IsDefined: true, MatchScore: score, Reasoning: "matched " + query}, nil
	}
}

func newTestRunner(classify ClassifyFunc) *BatchRunner {
	runner := NewBatchRunner(classify, nil)
	runner.Delay = 0
	runner.NewID = seqGen()
	runner.Now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	return runner
}

func TestBatchRunAllSuccess(t *testing.T) {
	runner := newTestRunner(okClassify(0.9))

	queries := []string{"q1", "q2", "q3"}
	outcome, err := runner.Run(context.Background(), queries)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if outcome.Completed != 3 || len(outcome.Records) != 3 {
		t.Fatalf("expected 3 completed records, got completed=%d records=%d", outcome.Completed, len(outcome.Records))
	}
	for i, rec := range outcome.Records {
		if rec.Query != queries[i] {
			t.Fatalf("record %d out of order: got %q want %q", i, rec.Query, queries[i])
		}
		if rec.ID == "" {
			t.Fatalf("record %d missing id", i)
		}
	}
	for i, item := range outcome.Items {
		if item.Status != StatusCompleted {
			t.Fatalf("item %d status = %s, want %s", i, item.Status, StatusCompleted)
		}
		if item.Result == nil || item.Result.Reasoning != "matched "+queries[i] {
			t.Fatalf("item %d result mismatch: %+v", i, item.Result)
		}
	}
}

func TestBatchRunIsolatesFailure(t *testing.T) {
	calls := 0
	classify := func(ctx context.Context, query string, catalog []FunctionEntry) (ClassificationResult, error) {
		calls++
		if query == "q2" {
			return ClassificationResult{}, fmt.Errorf("upstream timeout")
		}
		return ClassificationResult{IsDefined: false, MatchScore: 0.1, Reasoning: "r"}, nil
	}
	runner := newTestRunner(classify)

	outcome, err := runner.Run(context.Background(), []string{"q1", "q2", "q3"})
	if err != nil {
		t.Fatalf("a failed item must not abort the run: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected all 3 items attempted, got %d", calls)
	}

	wantStatuses := []BatchStatus{StatusCompleted, StatusError, StatusCompleted}
	for i, item := range outcome.Items {
		if item.Status != wantStatuses[i] {
			t.Fatalf("item %d status = %s, want %s", i, item.Status, wantStatuses[i])
		}
	}
	if outcome.Items[1].Result != nil {
		t.Fatalf("failed item must carry no result, got %+v", outcome.Items[1].Result)
	}
	if outcome.Completed != 2 || len(outcome.Records) != 2 {
		t.Fatalf("expected 2 completed records, got completed=%d records=%d", outcome.Completed, len(outcome.Records))
	}
	if outcome.Records[0].Query != "q1" || outcome.Records[1].Query != "q3" {
		t.Fatalf("unexpected record queries: %q, %q", outcome.Records[0].Query, outcome.Records[1].Query)
	}
}

func TestBatchRunProgressRounding(t *testing.T) {
	runner := newTestRunner(okClassify(0.5))

	var percents []int
	runner.OnProgress = func(done, total, percent int) {
		percents = append(percents, percent)
	}

	if _, err := runner.Run(context.Background(), []string{"a", "b", "c"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if want := []int{33, 67, 100}; !reflect.DeepEqual(percents, want) {
		t.Fatalf("progress percents = %v, want %v", percents, want)
	}
}

func TestBatchRunSingleFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var startOnce sync.Once
	classify := func(ctx context.Context, query string, catalog []FunctionEntry) (ClassificationResult, error) {
		startOnce.Do(func() { close(started) })
		<-release
		return ClassificationResult{Reasoning: "r"}, nil
	}
	runner := newTestRunner(classify)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := runner.Run(context.Background(), []string{"q1"}); err != nil {
			t.Errorf("first run failed: %v", err)
		}
	}()

	<-started
	if _, err := runner.Run(context.Background(), []string{"q2"}); err == nil {
		t.Fatal("expected second concurrent run to be rejected")
	}
	close(release)
	wg.Wait()

	// The guard is per run, not permanent.
	if _, err := runner.Run(context.Background(), []string{"q3"}); err != nil {
		t.Fatalf("run after completion failed: %v", err)
	}
}

func TestBatchRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	classify := func(ctx context.Context, query string, catalog []FunctionEntry) (ClassificationResult, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return ClassificationResult{IsDefined: true, MatchScore: 1, Reasoning: "r"}, nil
	}
	runner := newTestRunner(classify)

	outcome, err := runner.Run(ctx, []string{"q1", "q2", "q3", "q4"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected run to stop after cancellation, attempted %d items", calls)
	}
	// Work done before the cancellation is preserved.
	if len(outcome.Records) != 2 {
		t.Fatalf("expected 2 records before cancellation, got %d", len(outcome.Records))
	}
	if outcome.Items[2].Status != StatusPending || outcome.Items[3].Status != StatusPending {
		t.Fatalf("unattempted items must stay pending: %+v", outcome.Items)
	}
}

func TestBatchRunEmptyInput(t *testing.T) {
	runner := newTestRunner(okClassify(1))

	outcome, err := runner.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(outcome.Items) != 0 || len(outcome.Records) != 0 || outcome.Completed != 0 {
		t.Fatalf("expected empty outcome, got %+v", outcome)
	}
}
