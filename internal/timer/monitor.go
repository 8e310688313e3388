package timer

import (
	"context"
	"time"
)

// Storage is the durable persistence capability a ScheduleMonitor is built
// on. Concrete backends (file, SQLite, in-memory) live in internal/storage
// and satisfy this interface structurally. Storage must serialize writes
// per timerName; the core assumes single-writer semantics per timer.
type Storage interface {
	GetTimerStatus(ctx context.Context, timerName string) (*ScheduleStatus, error)
	PutTimerStatus(ctx context.Context, timerName string, status ScheduleStatus) error
}

// ScheduleMonitor is the durable-status abstraction TimerListener consumes.
// checkPastDue is shared, deterministic logic built once on top of
// Storage; concrete backends only need to implement Storage, never
// override the past-due algorithm.
type ScheduleMonitor struct {
	storage Storage
}

// NewScheduleMonitor builds a monitor over the given storage backend.
func NewScheduleMonitor(storage Storage) *ScheduleMonitor {
	return &ScheduleMonitor{storage: storage}
}

// GetStatus returns the persisted status for timerName, or nil if none has
// been written yet.
func (m *ScheduleMonitor) GetStatus(ctx context.Context, timerName string) (*ScheduleStatus, error) {
	return m.storage.GetTimerStatus(ctx, timerName)
}

// UpdateStatus persists status for timerName.
func (m *ScheduleMonitor) UpdateStatus(ctx context.Context, timerName string, status ScheduleStatus) error {
	return m.storage.PutTimerStatus(ctx, timerName, status)
}

// CheckPastDue implements the shared past-due algorithm from the design:
//
//  1. No prior status: persist {Last: Never, Next: schedule.Next(nowUTC),
//     LastUpdated: nowUTC} and return 0 — a brand-new timer is never past
//     due.
//  2. Prior status: derive the expected Next from whichever of
//     status.Last / status.LastUpdated is set (falling back to nowUTC),
//     detect whether the schedule definition changed (status.Next doesn't
//     match the freshly derived expectation), and if so rewrite the
//     status — recomputing from nowUTC instead of retroactively declaring
//     past due when the new Next would already be behind nowUTC.
//  3. Return max(0, nowUTC - recordedNext) where recordedNext is the Next
//     value as just persisted.
func (m *ScheduleMonitor) CheckPastDue(ctx context.Context, timerName string, nowUTC time.Time, tz Zone, schedule Schedule, lastStatus *ScheduleStatus) (time.Duration, error) {
	if nowUTC.Location() != time.UTC {
		return 0, newPrecondition("CheckPastDue requires a UTC instant")
	}

	if lastStatus == nil {
		nextUTC, err := schedule.Next(nowUTC, tz)
		if err != nil {
			return 0, err
		}
		status := ScheduleStatus{Last: Never, Next: nextUTC, LastUpdated: nowUTC}
		if err := m.storage.PutTimerStatus(ctx, timerName, status); err != nil {
			return 0, &MonitorTransientError{Timer: timerName, Op: "put", Err: err}
		}
		return 0, nil
	}

	var expectedNext, lastUpdatedSource time.Time
	var err error
	switch {
	case !lastStatus.Last.Equal(Never):
		expectedNext, err = schedule.Next(lastStatus.Last, tz)
		lastUpdatedSource = lastStatus.Last
	case !lastStatus.LastUpdated.Equal(Never):
		expectedNext, err = schedule.Next(lastStatus.LastUpdated, tz)
		lastUpdatedSource = lastStatus.LastUpdated
	default:
		expectedNext, err = schedule.Next(nowUTC, tz)
		lastUpdatedSource = nowUTC
	}
	if err != nil {
		return 0, err
	}

	recordedNext := lastStatus.Next
	if !lastStatus.Next.Equal(expectedNext) {
		// Schedule definition changed since this status was written.
		if nowUTC.After(expectedNext) {
			expectedNext, err = schedule.Next(nowUTC, tz)
			if err != nil {
				return 0, err
			}
			lastUpdatedSource = nowUTC
		}
		status := ScheduleStatus{Last: Never, Next: expectedNext, LastUpdated: lastUpdatedSource}
		if err := m.storage.PutTimerStatus(ctx, timerName, status); err != nil {
			return 0, &MonitorTransientError{Timer: timerName, Op: "put", Err: err}
		}
		recordedNext = expectedNext
	}

	pastDue := nowUTC.Sub(recordedNext)
	if pastDue < 0 {
		pastDue = 0
	}
	return pastDue, nil
}
