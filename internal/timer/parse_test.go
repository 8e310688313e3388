package timer

import (
	"testing"
	"time"
)

func TestResolvePlaceholders(t *testing.T) {
	got := ResolvePlaceholders("%prefix%/5 * * * * *", map[string]string{"prefix": "0"})
	if got != "0/5 * * * * *" {
		t.Fatalf("ResolvePlaceholders: got %q", got)
	}
	// Unknown placeholders are left alone.
	got = ResolvePlaceholders("%unknown% * * * * *", map[string]string{"prefix": "0"})
	if got != "%unknown% * * * * *" {
		t.Fatalf("ResolvePlaceholders must leave unknown placeholders untouched, got %q", got)
	}
}

func TestParseScheduleCron(t *testing.T) {
	sched, err := ParseSchedule("0 */5 * * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	if !sched.IsCron() {
		t.Fatalf("expected a cron schedule")
	}
}

func TestParseScheduleCronPrefix(t *testing.T) {
	sched, err := ParseSchedule("cron: 0 0 * * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	if !sched.IsCron() {
		t.Fatalf("expected a cron schedule")
	}
}

func TestParseScheduleDuration(t *testing.T) {
	sched, err := ParseSchedule("90s")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	if sched.IsCron() {
		t.Fatalf("expected a constant schedule")
	}
	next, err := sched.Next(time.Unix(0, 0).UTC(), UTC)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got := next.Sub(time.Unix(0, 0).UTC()); got != 90*time.Second {
		t.Fatalf("period = %v, want 90s", got)
	}
}

func TestParseScheduleHHMM(t *testing.T) {
	sched, err := ParseSchedule("02:30")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	next, err := sched.Next(time.Unix(0, 0).UTC(), UTC)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got := next.Sub(time.Unix(0, 0).UTC()); got != 2*time.Hour+30*time.Minute {
		t.Fatalf("period = %v, want 2h30m", got)
	}
}

func TestParseScheduleTimeSpan(t *testing.T) {
	cases := []struct {
		expr string
		want time.Duration
	}{
		{"1.00:00:00", 24 * time.Hour},
		{"00:00:30.500", 30*time.Second + 500*time.Millisecond},
		{"00:00:05", 5 * time.Second},
		{"2.03:04:05", 2*24*time.Hour + 3*time.Hour + 4*time.Minute + 5*time.Second},
		{"00:00:01.5", 1*time.Second + 500*time.Millisecond},
	}
	for _, c := range cases {
		sched, err := ParseSchedule(c.expr)
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", c.expr, err)
		}
		if sched.IsCron() {
			t.Fatalf("ParseSchedule(%q): expected a constant schedule", c.expr)
		}
		next, err := sched.Next(time.Unix(0, 0).UTC(), UTC)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got := next.Sub(time.Unix(0, 0).UTC()); got != c.want {
			t.Fatalf("ParseSchedule(%q): period = %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestParseScheduleTimeSpanRejectsOutOfRange(t *testing.T) {
	cases := []string{"24:00:00", "1.00:60:00", "1.00:00:60", "00:00:00"}
	for _, c := range cases {
		if _, err := ParseSchedule(c); err == nil {
			t.Fatalf("expected %q to be rejected", c)
		}
	}
}

func TestParseScheduleIntervalPrefix(t *testing.T) {
	sched, err := ParseSchedule("interval: 45m")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	next, err := sched.Next(time.Unix(0, 0).UTC(), UTC)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got := next.Sub(time.Unix(0, 0).UTC()); got != 45*time.Minute {
		t.Fatalf("period = %v, want 45m", got)
	}
}

func TestParseScheduleRejectsGarbage(t *testing.T) {
	cases := []string{"", "not-a-schedule", "99:99"}
	for _, c := range cases {
		if _, err := ParseSchedule(c); err == nil {
			t.Fatalf("expected %q to be rejected", c)
		}
	}
}
