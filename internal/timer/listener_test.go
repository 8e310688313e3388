package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"pewbot/pkg/logx"
)

// fakeTimer and fakeClock give listener tests full control over wall-clock
// time and callback firing instead of waiting on real durations.
type fakeTimer struct {
	fc       *fakeClock
	deadline time.Time
	fn       func()
	stopped  bool
}

func (t *fakeTimer) Stop() bool {
	t.fc.mu.Lock()
	defer t.fc.mu.Unlock()
	wasPending := !t.stopped
	t.stopped = true
	return wasPending
}

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) StoppableTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	tm := &fakeTimer{fc: c, deadline: c.now.Add(d), fn: f}
	c.pending = append(c.pending, tm)
	return tm
}

// Advance moves the clock forward by d, firing (synchronously, in
// deadline order) every timer whose deadline falls at or before the new
// time. Firing a timer may itself register a new one; Advance keeps
// draining until no pending timer is due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due *fakeTimer
		idx := -1
		for i, tm := range c.pending {
			if tm.stopped {
				continue
			}
			if !tm.deadline.After(target) {
				if due == nil || tm.deadline.Before(due.deadline) {
					due, idx = tm, i
				}
			}
		}
		if due == nil {
			c.mu.Unlock()
			return
		}
		due.stopped = true
		c.pending = append(c.pending[:idx], c.pending[idx+1:]...)
		c.mu.Unlock()
		due.fn()
	}
}

type countingExecutor struct {
	mu      sync.Mutex
	invokes []TimerInfo
	onFire  func() // optional hook invoked synchronously inside Invoke
}

func (e *countingExecutor) Invoke(_ context.Context, info TimerInfo) InvocationResult {
	e.mu.Lock()
	e.invokes = append(e.invokes, info)
	e.mu.Unlock()
	if e.onFire != nil {
		e.onFire()
	}
	return InvocationResult{OK: true}
}

func (e *countingExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.invokes)
}

func TestListenerRunOnStartupPastDue(t *testing.T) {
	storage := newMemStorage()
	monitor := NewScheduleMonitor(storage)
	sched, err := NewConstantSchedule(5 * time.Minute)
	if err != nil {
		t.Fatalf("NewConstantSchedule: %v", err)
	}
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	// The recorded Next is 3 minutes behind "now": a host that was down for
	// a while, matching the spec's "checkPastDue returns 3 minutes" setup.
	recordedNext := base.Add(5 * time.Minute)
	seeded := ScheduleStatus{Last: base, Next: recordedNext, LastUpdated: base}
	if err := storage.PutTimerStatus(context.Background(), "job", seeded); err != nil {
		t.Fatalf("PutTimerStatus: %v", err)
	}

	clock := newFakeClock(recordedNext.Add(3 * time.Minute))
	exec := &countingExecutor{}

	lis, err := NewTimerListener(ListenerConfig{
		Name:         "job",
		Schedule:     sched,
		Zone:         UTC,
		UseMonitor:   true,
		RunOnStartup: true,
		Monitor:      monitor,
		Executor:     exec,
		Clock:        clock,
		Log:          logx.Nop(),
	})
	if err != nil {
		t.Fatalf("NewTimerListener: %v", err)
	}

	if err := lis.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if exec.count() != 1 {
		t.Fatalf("a past-due startup catch-up must invoke exactly once, got %d", exec.count())
	}
	if !exec.invokes[0].IsPastDue {
		t.Fatalf("expected IsPastDue=true for a 3-minute-past-due startup catch-up")
	}

	for i := 0; i < 3; i++ {
		clock.Advance(5 * time.Minute)
	}
	if exec.count() != 4 {
		t.Fatalf("expected the catch-up plus 3 regular fires, got %d", exec.count())
	}
}

func TestListenerClockSkewEarlyFire(t *testing.T) {
	storage := newMemStorage()
	monitor := NewScheduleMonitor(storage)
	sched, err := NewConstantSchedule(time.Minute)
	if err != nil {
		t.Fatalf("NewConstantSchedule: %v", err)
	}
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	statusNext := base.Add(time.Minute)
	seeded := ScheduleStatus{Last: base, Next: statusNext, LastUpdated: base}
	if err := storage.PutTimerStatus(context.Background(), "job", seeded); err != nil {
		t.Fatalf("PutTimerStatus: %v", err)
	}

	clock := newFakeClock(base)
	exec := &countingExecutor{}
	lis, err := NewTimerListener(ListenerConfig{
		Name:       "job",
		Schedule:   sched,
		Zone:       UTC,
		UseMonitor: true,
		Monitor:    monitor,
		Executor:   exec,
		Clock:      clock,
		Log:        logx.Nop(),
	})
	if err != nil {
		t.Fatalf("NewTimerListener: %v", err)
	}

	// Put the listener directly into the state a real host would observe
	// partway through its life: Started, armed, with the persisted status
	// already loaded. This isolates the fire protocol's skew handling from
	// the arm-next interval math exercised by the other listener tests.
	lis.mu.Lock()
	lis.state = stateStarted
	lis.lastStatus = &seeded
	lis.runCtx = context.Background()
	lis.mu.Unlock()

	// The platform timer fires 1ms before status.Next, exactly as the
	// scenario describes.
	clock.mu.Lock()
	clock.now = statusNext.Add(-time.Millisecond)
	clock.mu.Unlock()
	lis.onTimerFire()

	if exec.count() != 1 {
		t.Fatalf("expected exactly one invocation, got %d", exec.count())
	}
	status, err := monitor.GetStatus(context.Background(), "job")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !status.Last.Equal(statusNext) {
		t.Fatalf("persisted Last = %v, want status.Next = %v", status.Last, statusNext)
	}
	wantNext, err := sched.Next(statusNext, UTC)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !status.Next.Equal(wantNext) {
		t.Fatalf("persisted Next = %v, want %v", status.Next, wantNext)
	}

	pastDue, err := monitor.CheckPastDue(context.Background(), "job", statusNext.Add(time.Second), UTC, sched, status)
	if err != nil {
		t.Fatalf("CheckPastDue: %v", err)
	}
	if pastDue != 0 {
		t.Fatalf("a subsequent past-due check shortly after firing must return 0, got %v", pastDue)
	}
}

func TestListenerLongIntervalCarry(t *testing.T) {
	period := MaxTimerInterval*2 + 4*24*time.Hour
	sched, err := NewConstantSchedule(period)
	if err != nil {
		t.Fatalf("NewConstantSchedule: %v", err)
	}
	clock := newFakeClock(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	exec := &countingExecutor{}
	lis, err := NewTimerListener(ListenerConfig{
		Name:     "job",
		Schedule: sched,
		Zone:     UTC,
		Executor: exec,
		Clock:    clock,
		Log:      logx.Nop(),
	})
	if err != nil {
		t.Fatalf("NewTimerListener: %v", err)
	}
	if err := lis.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	lis.mu.Lock()
	firstArm := lis.remaining
	lis.mu.Unlock()
	if firstArm != period-MaxTimerInterval {
		t.Fatalf("after Start, remaining = %v, want %v", firstArm, period-MaxTimerInterval)
	}

	clock.Advance(MaxTimerInterval)
	if exec.count() != 0 {
		t.Fatalf("first hop must not invoke, got %d invocations", exec.count())
	}
	clock.Advance(MaxTimerInterval)
	if exec.count() != 0 {
		t.Fatalf("second hop must not invoke, got %d invocations", exec.count())
	}
	clock.Advance(4 * 24 * time.Hour)
	if exec.count() != 1 {
		t.Fatalf("third hop must invoke exactly once, got %d invocations", exec.count())
	}

	lis.mu.Lock()
	rearmed := lis.remaining
	lis.mu.Unlock()
	if rearmed != period-MaxTimerInterval {
		t.Fatalf("after firing, re-arm carry = %v, want %v", rearmed, period-MaxTimerInterval)
	}
}

func TestListenerStopDuringInvocationPreventsRearm(t *testing.T) {
	sched, err := NewConstantSchedule(time.Minute)
	if err != nil {
		t.Fatalf("NewConstantSchedule: %v", err)
	}
	clock := newFakeClock(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	exec := &countingExecutor{}
	lis, err := NewTimerListener(ListenerConfig{
		Name:     "job",
		Schedule: sched,
		Zone:     UTC,
		Executor: exec,
		Clock:    clock,
		Log:      logx.Nop(),
	})
	if err != nil {
		t.Fatalf("NewTimerListener: %v", err)
	}

	invoking := make(chan struct{})
	release := make(chan struct{})
	exec.onFire = func() {
		close(invoking)
		<-release
	}
	if err := lis.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	go clock.Advance(time.Minute)
	<-invoking // the executor is now mid-invocation

	stopDone := make(chan struct{})
	go func() {
		if err := lis.Stop(context.Background()); err != nil {
			t.Errorf("Stop: %v", err)
		}
		close(stopDone)
	}()
	close(release) // let the in-flight invocation finish
	<-stopDone      // Stop has fully drained it

	if exec.count() != 1 {
		t.Fatalf("expected exactly one invocation, got %d", exec.count())
	}

	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute)
	}
	if exec.count() != 1 {
		t.Fatalf("after Stop, no further invocation may occur; got %d total", exec.count())
	}
}

func TestListenerDoubleStartRejected(t *testing.T) {
	sched, _ := NewConstantSchedule(time.Minute)
	clock := newFakeClock(time.Now().UTC())
	lis, err := NewTimerListener(ListenerConfig{
		Name:     "job",
		Schedule: sched,
		Zone:     UTC,
		Executor: &countingExecutor{},
		Clock:    clock,
		Log:      logx.Nop(),
	})
	if err != nil {
		t.Fatalf("NewTimerListener: %v", err)
	}
	if err := lis.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := lis.Start(context.Background()); err == nil {
		t.Fatalf("expected an error starting an already-started listener")
	}
}

func TestListenerStopBeforeStartRejected(t *testing.T) {
	sched, _ := NewConstantSchedule(time.Minute)
	lis, err := NewTimerListener(ListenerConfig{
		Name:     "job",
		Schedule: sched,
		Zone:     UTC,
		Executor: &countingExecutor{},
		Clock:    newFakeClock(time.Now().UTC()),
		Log:      logx.Nop(),
	})
	if err != nil {
		t.Fatalf("NewTimerListener: %v", err)
	}
	if err := lis.Stop(context.Background()); err == nil {
		t.Fatalf("expected an error stopping a listener that was never started")
	}
}
