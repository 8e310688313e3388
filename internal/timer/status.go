package timer

import "time"

// Never is the sentinel UTC instant representing "has not happened yet".
var Never = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// ScheduleStatus is a plain value record of the three UTC instants that
// make a timer's occurrence bookkeeping durable across restarts.
type ScheduleStatus struct {
	// Last is the UTC time of the most recent occurrence that actually
	// fired, or Never before any fire.
	Last time.Time
	// Next is the UTC time at which the next occurrence is expected.
	Next time.Time
	// LastUpdated is the UTC time at which Next was (re)computed.
	LastUpdated time.Time
}

// NewScheduleStatus builds a status, asserting that all three fields are
// UTC (a contract violation otherwise).
func NewScheduleStatus(last, next, lastUpdated time.Time) (ScheduleStatus, error) {
	for _, t := range []time.Time{last, next, lastUpdated} {
		if t.Location() != time.UTC {
			return ScheduleStatus{}, newPrecondition("ScheduleStatus fields must be UTC")
		}
	}
	return ScheduleStatus{Last: last, Next: next, LastUpdated: lastUpdated}, nil
}

// Equal reports field-wise equality.
func (s ScheduleStatus) Equal(o ScheduleStatus) bool {
	return s.Last.Equal(o.Last) && s.Next.Equal(o.Next) && s.LastUpdated.Equal(o.LastUpdated)
}

// IsZero reports whether s is the Go zero value (as opposed to a status
// whose fields are explicitly set to Never).
func (s ScheduleStatus) IsZero() bool {
	return s.Last.IsZero() && s.Next.IsZero() && s.LastUpdated.IsZero()
}
