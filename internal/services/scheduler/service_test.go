package scheduler

import (
	"context"
	"sync"
	"testing"

	"pewbot/internal/services/taskengine"
	"pewbot/internal/storage"
	"pewbot/internal/timer"
	logx "pewbot/pkg/logx"
)

func newTestEngine() *taskengine.Service {
	return taskengine.New(taskengine.Config{RetryMax: 0}, nil, nil)
}

func newMemoryStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	return st
}

func noopJob(context.Context, timer.TimerInfo) error { return nil }

func TestRegisterJobRejectsEmptyNameOrNilJob(t *testing.T) {
	s := New(Config{}, logx.Nop(), newTestEngine(), nil)
	if err := s.RegisterJob("  ", noopJob); err == nil {
		t.Fatal("expected an error for an empty job name")
	}
	if err := s.RegisterJob("ok", nil); err == nil {
		t.Fatal("expected an error for a nil job")
	}
}

func TestStartRunsRegisteredJobOnStartup(t *testing.T) {
	var mu sync.Mutex
	var ran bool

	s := New(Config{
		Enabled: true,
		Timers: []TimerDef{
			{Name: "nightly", Schedule: "1h", RunOnStartup: true},
		},
	}, logx.Nop(), newTestEngine(), nil)

	if err := s.RegisterJob("nightly", func(ctx context.Context, info timer.TimerInfo) error {
		mu.Lock()
		ran = true
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	mu.Lock()
	got := ran
	mu.Unlock()
	if !got {
		t.Fatal("expected the registered job to run once on startup")
	}

	snap := s.Snapshot(context.Background())
	if !snap.Enabled || len(snap.Timers) != 1 || snap.Timers[0].Name != "nightly" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestStartSkipsTimerWithNoRegisteredJob(t *testing.T) {
	s := New(Config{
		Enabled: true,
		Timers:  []TimerDef{{Name: "orphaned", Schedule: "1h"}},
	}, logx.Nop(), newTestEngine(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	snap := s.Snapshot(context.Background())
	if len(snap.Timers) != 0 {
		t.Fatalf("expected no running timers, got %+v", snap.Timers)
	}
}

func TestApplyStopsRemovedTimerAndStartsAddedOne(t *testing.T) {
	s := New(Config{
		Enabled: true,
		Timers:  []TimerDef{{Name: "a", Schedule: "1h"}},
	}, logx.Nop(), newTestEngine(), nil)

	if err := s.RegisterJob("a", noopJob); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterJob("b", noopJob); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	if snap := s.Snapshot(context.Background()); len(snap.Timers) != 1 || snap.Timers[0].Name != "a" {
		t.Fatalf("expected only %q running, got %+v", "a", snap.Timers)
	}

	s.Apply(ctx, Config{
		Enabled: true,
		Timers:  []TimerDef{{Name: "b", Schedule: "1h"}},
	})

	snap := s.Snapshot(context.Background())
	if len(snap.Timers) != 1 || snap.Timers[0].Name != "b" {
		t.Fatalf("expected only %q running after Apply, got %+v", "b", snap.Timers)
	}
}

func TestApplyLeavesUnchangedTimerRunning(t *testing.T) {
	def := TimerDef{Name: "steady", Schedule: "1h"}
	s := New(Config{Enabled: true, Timers: []TimerDef{def}}, logx.Nop(), newTestEngine(), nil)

	if err := s.RegisterJob("steady", noopJob); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	before := s.running["steady"]
	s.Apply(ctx, Config{Enabled: true, Timers: []TimerDef{def}})
	after := s.running["steady"]

	if before != after {
		t.Fatal("expected an identical TimerDef to leave the running listener untouched")
	}
}

func TestUseMonitorForcedOffWithoutStore(t *testing.T) {
	on := true
	s := New(Config{
		Enabled: true,
		Timers:  []TimerDef{{Name: "x", Schedule: "1h", UseMonitor: &on}},
	}, logx.Nop(), newTestEngine(), nil) // nil store

	if err := s.RegisterJob("x", noopJob); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	snap := s.Snapshot(context.Background())
	if len(snap.Timers) != 1 || snap.Timers[0].UseMonitor {
		t.Fatalf("expected UseMonitor to be forced off with no store, got %+v", snap.Timers)
	}
}

func TestUseMonitorPersistsStatusWithStore(t *testing.T) {
	store := newMemoryStore(t)
	defer store.Close()

	s := New(Config{
		Enabled: true,
		Timers:  []TimerDef{{Name: "cron-ish", Schedule: "0 0 3 * * *", RunOnStartup: true}},
	}, logx.Nop(), newTestEngine(), store)

	if err := s.RegisterJob("cron-ish", noopJob); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	status, err := store.GetTimerStatus(context.Background(), "cron-ish")
	if err != nil {
		t.Fatalf("GetTimerStatus: %v", err)
	}
	if status == nil || status.Last.IsZero() {
		t.Fatalf("expected a persisted status with a non-zero Last, got %+v", status)
	}
}
