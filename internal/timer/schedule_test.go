package timer

import (
	"math/rand"
	"testing"
	"time"
)

func withinPercent(t *testing.T, got, want time.Duration, pct float64) {
	t.Helper()
	lo := time.Duration(float64(want) * (1 - pct))
	hi := time.Duration(float64(want) * (1 + pct))
	if got < lo || got > hi {
		t.Fatalf("interval %v not within %.0f%% of %v (bounds [%v, %v])", got, pct*100, want, lo, hi)
	}
}

func TestNextCronAfterDST(t *testing.T) {
	z := losAngeles(t)
	sched, err := NewCronSchedule("0 0 18 6 * *")
	if err != nil {
		t.Fatalf("NewCronSchedule: %v", err)
	}
	now := z.ToUTC(time.Date(2018, 3, 9, 18, 0, 0, 0, time.UTC))
	next, err := sched.Next(now, z)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	got := next.Sub(now)
	want := 671 * time.Hour
	if got != want {
		t.Fatalf("after-DST interval = %v, want exactly %v", got, want)
	}
}

func TestNextCronWithinSkippedHour(t *testing.T) {
	z := losAngeles(t)
	sched, err := NewCronSchedule("0 59 * * * *")
	if err != nil {
		t.Fatalf("NewCronSchedule: %v", err)
	}
	now := z.ToUTC(time.Date(2018, 3, 11, 1, 59, 0, 0, time.UTC))
	next, err := sched.Next(now, z)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got := next.Sub(now); got != time.Hour {
		t.Fatalf("within-skipped-hour interval = %v, want exactly 1h (2:59 is skipped)", got)
	}
}

func TestNextCronAmbiguousFrequent(t *testing.T) {
	z := losAngeles(t)
	sched, err := NewCronSchedule("0 30 * * * *")
	if err != nil {
		t.Fatalf("NewCronSchedule: %v", err)
	}
	now := z.ToUTC(time.Date(2018, 11, 4, 0, 30, 0, 0, time.UTC))
	for i := 0; i < 3; i++ {
		next, err := sched.Next(now, z)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		withinPercent(t, next.Sub(now), time.Hour, 0.05)
		now = next
	}
}

func TestNextCronAmbiguousRare(t *testing.T) {
	z := losAngeles(t)
	sched, err := NewCronSchedule("0 30 1 * * *")
	if err != nil {
		t.Fatalf("NewCronSchedule: %v", err)
	}
	now := z.ToUTC(time.Date(2018, 11, 3, 1, 30, 0, 0, time.UTC))
	next, err := sched.Next(now, z)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	withinPercent(t, next.Sub(now), 24*time.Hour, 0.05)
}

func TestScheduleNextAlwaysAfterNow(t *testing.T) {
	z := losAngeles(t)
	cron, err := NewCronSchedule("*/7 * * * * *")
	if err != nil {
		t.Fatalf("NewCronSchedule: %v", err)
	}
	constant, err := NewConstantSchedule(37 * time.Second)
	if err != nil {
		t.Fatalf("NewConstantSchedule: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	base := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, sched := range []Schedule{cron, constant} {
		for i := 0; i < 200; i++ {
			now := base.Add(time.Duration(rng.Int63n(int64(400 * 24 * time.Hour))))
			next, err := sched.Next(now, z)
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if !next.After(now) {
				t.Fatalf("Next(%v) = %v must be strictly after now", now, next)
			}
		}
	}
}

func TestScheduleNextNMatchesRepeatedNext(t *testing.T) {
	z := losAngeles(t)
	sched, err := NewCronSchedule("0 */15 * * * *")
	if err != nil {
		t.Fatalf("NewCronSchedule: %v", err)
	}
	now := time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC)
	seq, err := sched.NextN(5, now, z)
	if err != nil {
		t.Fatalf("NextN: %v", err)
	}
	cursor := now
	for i, want := range seq {
		got, err := sched.Next(cursor, z)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !got.Equal(want) {
			t.Fatalf("step %d: NextN gave %v, repeated Next gave %v", i, want, got)
		}
		cursor = got
	}
}

func TestConstantScheduleRejectsNonPositivePeriod(t *testing.T) {
	if _, err := NewConstantSchedule(0); err == nil {
		t.Fatalf("expected an error for a zero period")
	}
	if _, err := NewConstantSchedule(-time.Second); err == nil {
		t.Fatalf("expected an error for a negative period")
	}
}

func TestCronScheduleOrsDayOfMonthAndDayOfWeek(t *testing.T) {
	z := losAngeles(t)
	// 9am on the 1st/15th, plus every Monday (the reviewer's own example):
	// both fields are restricted, so standard cron semantics OR them
	// together rather than requiring both to hold at once.
	sched, err := NewCronSchedule("0 0 9 1,15 * 1")
	if err != nil {
		t.Fatalf("NewCronSchedule: %v", err)
	}

	// 2018-06-04 is a Monday that is neither the 1st nor the 15th.
	monday := z.ToUTC(time.Date(2018, 6, 4, 9, 0, 0, 0, time.UTC))
	next, err := sched.Next(monday.Add(-time.Second), z)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !next.Equal(monday) {
		t.Fatalf("expected the Monday-only match at %v, got %v", monday, next)
	}

	// 2018-06-15 is a Friday: matches only via day-of-month, not day-of-week.
	fifteenth := z.ToUTC(time.Date(2018, 6, 15, 9, 0, 0, 0, time.UTC))
	next, err = sched.Next(fifteenth.Add(-time.Second), z)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !next.Equal(fifteenth) {
		t.Fatalf("expected the 15th-only match at %v, got %v", fifteenth, next)
	}
}

func TestCronScheduleRejectsMalformedExpressions(t *testing.T) {
	cases := []string{
		"",
		"* * * * *",     // five fields, not six
		"60 * * * * *",  // seconds out of range
		"* * * 32 * *",  // day-of-month out of range
		"* * * * 13 *",  // month out of range
		"* * * * * 7",   // weekday out of range
	}
	for _, expr := range cases {
		if _, err := NewCronSchedule(expr); err == nil {
			t.Fatalf("expected %q to be rejected", expr)
		}
	}
}
