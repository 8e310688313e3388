package taskengine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunSyncSucceedsOnFirstAttempt(t *testing.T) {
	svc := New(Config{RetryMax: 3}, nil, nil)

	var ran int
	attempts, err := svc.RunSync(context.Background(), Task{
		ID:   "t1",
		Name: "ok",
		Run: func(ctx context.Context) error {
			ran++
			return nil
		},
	})
	if err != nil {
		t.Fatalf("RunSync returned error: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
	if ran != 1 {
		t.Fatalf("Run invoked %d times, want 1", ran)
	}
}

func TestRunSyncRetriesThenFails(t *testing.T) {
	svc := New(Config{RetryMax: 2}, nil, nil)

	boom := errors.New("boom")
	var ran int
	attempts, err := svc.RunSync(context.Background(), Task{
		ID:   "t2",
		Name: "always-fails",
		Opt:  TaskOptions{RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond},
		Run: func(ctx context.Context) error {
			ran++
			return boom
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	// RetryMax=2 means the initial attempt plus two retries.
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if ran != attempts {
		t.Fatalf("Run invoked %d times, want %d", ran, attempts)
	}
}

func TestRunSyncRunsRegardlessOfStartStop(t *testing.T) {
	// RunSync bypasses the queue/worker pool entirely, so it must work
	// whether or not Start has ever been called.
	svc := New(Config{Enabled: false}, nil, nil)

	attempts, err := svc.RunSync(context.Background(), Task{
		ID:   "t3",
		Name: "no-workers-needed",
		Run:  func(ctx context.Context) error { return nil },
	})
	if err != nil {
		t.Fatalf("RunSync returned error: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestRunSyncNilRunIsError(t *testing.T) {
	svc := New(Config{}, nil, nil)
	if _, err := svc.RunSync(context.Background(), Task{ID: "t4", Name: "nil-run"}); err == nil {
		t.Fatal("expected an error for a Task with a nil Run")
	}
}
