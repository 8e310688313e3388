package timer

import (
	"context"
	"sync"
	"testing"
	"time"
)

// memStorage is a minimal in-memory Storage used only by this package's
// own tests; the host-facing in-memory backend lives in internal/storage.
type memStorage struct {
	mu   sync.Mutex
	data map[string]ScheduleStatus
}

func newMemStorage() *memStorage { return &memStorage{data: map[string]ScheduleStatus{}} }

func (m *memStorage) GetTimerStatus(_ context.Context, name string) (*ScheduleStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[name]
	if !ok {
		return nil, nil
	}
	cp := s
	return &cp, nil
}

func (m *memStorage) PutTimerStatus(_ context.Context, name string, status ScheduleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = status
	return nil
}

func TestCheckPastDueBrandNewTimer(t *testing.T) {
	storage := newMemStorage()
	mon := NewScheduleMonitor(storage)
	sched, err := NewConstantSchedule(5 * time.Minute)
	if err != nil {
		t.Fatalf("NewConstantSchedule: %v", err)
	}
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	pastDue, err := mon.CheckPastDue(context.Background(), "job", now, UTC, sched, nil)
	if err != nil {
		t.Fatalf("CheckPastDue: %v", err)
	}
	if pastDue != 0 {
		t.Fatalf("brand-new timer must never be past due, got %v", pastDue)
	}

	status, err := mon.GetStatus(context.Background(), "job")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status == nil {
		t.Fatalf("CheckPastDue must persist a status for a brand-new timer")
	}
	if !status.Last.Equal(Never) {
		t.Fatalf("brand-new status.Last must be Never, got %v", status.Last)
	}
	if !status.Next.After(status.Last) {
		t.Fatalf("status.Next must be after status.Last")
	}
}

func TestCheckPastDueReportsElapsedTime(t *testing.T) {
	storage := newMemStorage()
	mon := NewScheduleMonitor(storage)
	sched, err := NewConstantSchedule(time.Minute)
	if err != nil {
		t.Fatalf("NewConstantSchedule: %v", err)
	}
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	last := base
	next, err := sched.Next(last, UTC)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	existing := ScheduleStatus{Last: last, Next: next, LastUpdated: last}
	if err := storage.PutTimerStatus(context.Background(), "job", existing); err != nil {
		t.Fatalf("PutTimerStatus: %v", err)
	}

	now := next.Add(3 * time.Minute)
	pastDue, err := mon.CheckPastDue(context.Background(), "job", now, UTC, sched, &existing)
	if err != nil {
		t.Fatalf("CheckPastDue: %v", err)
	}
	if pastDue != 3*time.Minute {
		t.Fatalf("pastDue = %v, want 3m", pastDue)
	}
}

func TestCheckPastDueDetectsScheduleChange(t *testing.T) {
	storage := newMemStorage()
	mon := NewScheduleMonitor(storage)

	oldSched, err := NewConstantSchedule(time.Hour)
	if err != nil {
		t.Fatalf("NewConstantSchedule: %v", err)
	}
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	oldNext, err := oldSched.Next(base, UTC)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	existing := ScheduleStatus{Last: base, Next: oldNext, LastUpdated: base}

	// Schedule definition changed to a much shorter period; now is still
	// before the stale recorded Next, so the freshly derived expectation
	// (base + 1 minute) is not yet in the past -> keep it, don't re-derive
	// from now.
	newSched, err := NewConstantSchedule(time.Minute)
	if err != nil {
		t.Fatalf("NewConstantSchedule: %v", err)
	}
	now := base.Add(30 * time.Second)

	pastDue, err := mon.CheckPastDue(context.Background(), "job", now, UTC, newSched, &existing)
	if err != nil {
		t.Fatalf("CheckPastDue: %v", err)
	}
	if pastDue != 0 {
		t.Fatalf("pastDue = %v, want 0 (new expectation is still in the future)", pastDue)
	}
	status, err := mon.GetStatus(context.Background(), "job")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !status.Last.Equal(Never) {
		t.Fatalf("a detected schedule change must reset Last to Never, got %v", status.Last)
	}
	wantNext := base.Add(time.Minute)
	if !status.Next.Equal(wantNext) {
		t.Fatalf("status.Next = %v, want %v", status.Next, wantNext)
	}
}

func TestCheckPastDueScheduleChangeAlreadyBehindRecomputesFromNow(t *testing.T) {
	storage := newMemStorage()
	mon := NewScheduleMonitor(storage)

	oldSched, err := NewConstantSchedule(24 * time.Hour)
	if err != nil {
		t.Fatalf("NewConstantSchedule: %v", err)
	}
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	oldNext, err := oldSched.Next(base, UTC)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	existing := ScheduleStatus{Last: base, Next: oldNext, LastUpdated: base}

	newSched, err := NewConstantSchedule(time.Minute)
	if err != nil {
		t.Fatalf("NewConstantSchedule: %v", err)
	}
	// now is well past what the new schedule would have expected from base,
	// so the naive expectation (base+1m) is itself stale; the monitor must
	// recompute from now instead of declaring a huge past-due window.
	now := base.Add(12 * time.Hour)

	pastDue, err := mon.CheckPastDue(context.Background(), "job", now, UTC, newSched, &existing)
	if err != nil {
		t.Fatalf("CheckPastDue: %v", err)
	}
	if pastDue != 0 {
		t.Fatalf("pastDue = %v, want 0 (recomputed from now)", pastDue)
	}
	status, err := mon.GetStatus(context.Background(), "job")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	wantNext := now.Add(time.Minute)
	if !status.Next.Equal(wantNext) {
		t.Fatalf("status.Next = %v, want %v (now + new period)", status.Next, wantNext)
	}
}

func TestCheckPastDueRequiresUTC(t *testing.T) {
	storage := newMemStorage()
	mon := NewScheduleMonitor(storage)
	sched, _ := NewConstantSchedule(time.Minute)
	loc := losAngeles(t)
	now := time.Now().In(loc.location())
	if _, err := mon.CheckPastDue(context.Background(), "job", now, UTC, sched, nil); err == nil {
		t.Fatalf("expected a precondition error for a non-UTC instant")
	}
}

func TestScheduleStatusRejectsNonUTCFields(t *testing.T) {
	loc := losAngeles(t)
	bad := time.Now().In(loc.location())
	if _, err := NewScheduleStatus(bad, time.Now().UTC(), time.Now().UTC()); err == nil {
		t.Fatalf("expected an error for a non-UTC field")
	}
}
