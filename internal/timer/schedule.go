package timer

import (
	"time"
)

// Schedule is an opaque strategy computing the next occurrence of a
// recurring trigger. It is safe for concurrent use: Next performs no I/O
// and mutates nothing.
type Schedule struct {
	kind   scheduleKind
	cron   *cronFields
	period time.Duration
}

type scheduleKind int

const (
	kindCron scheduleKind = iota
	kindConstant
)

// NewConstantSchedule builds a Schedule that fires every period, starting
// period after whatever instant Next is first called with. period must be
// strictly positive.
func NewConstantSchedule(period time.Duration) (Schedule, error) {
	if period <= 0 {
		return Schedule{}, newConfigError("", newPrecondition("constant schedule period must be strictly positive"))
	}
	return Schedule{kind: kindConstant, period: period}, nil
}

// NewCronSchedule parses a six-field cron expression ("sec min hour dom
// mon dow") and builds a Schedule that evaluates it against civil time in
// whatever Zone is passed to Next.
func NewCronSchedule(expr string) (Schedule, error) {
	cf, err := parseCronFields(expr)
	if err != nil {
		return Schedule{}, newConfigError("", err)
	}
	return Schedule{kind: kindCron, cron: cf}, nil
}

// IsZero reports whether s was never initialized via NewConstantSchedule
// or NewCronSchedule.
func (s Schedule) IsZero() bool { return s.kind == kindCron && s.cron == nil && s.period == 0 }

// String returns the schedule's original textual form (for logging).
func (s Schedule) String() string {
	switch s.kind {
	case kindConstant:
		return s.period.String()
	default:
		if s.cron == nil {
			return ""
		}
		return s.cron.text
	}
}

// IsCron reports whether this schedule is cron-based.
func (s Schedule) IsCron() bool { return s.kind == kindCron }

// OccursMoreThanOncePerMinute reports whether this schedule can fire more
// than once within any given minute: true for any constant period under a
// minute, and, for cron, whenever the seconds field allows more than one
// value (a conservative but correct over-approximation, since a cron
// schedule with multiple seconds values but a single minute value already
// fires more than once per minute).
func (s Schedule) OccursMoreThanOncePerMinute() bool {
	switch s.kind {
	case kindConstant:
		return s.period < time.Minute
	case kindCron:
		return s.cron != nil && len(s.cron.seconds) > 1
	default:
		return false
	}
}

// Next returns the smallest occurrence strictly greater than nowUTC.
// nowUTC must be UTC; tz is ignored for constant schedules.
func (s Schedule) Next(nowUTC time.Time, tz Zone) (time.Time, error) {
	if nowUTC.Location() != time.UTC {
		return time.Time{}, newPrecondition("Next requires a UTC instant")
	}
	switch s.kind {
	case kindConstant:
		return nowUTC.Add(s.period), nil
	case kindCron:
		return s.nextCron(nowUTC, tz)
	default:
		return time.Time{}, newPrecondition("schedule not initialized")
	}
}

// NextN iterates Next count times, feeding each result back in as nowUTC.
// count must be >= 0.
func (s Schedule) NextN(count int, nowUTC time.Time, tz Zone) ([]time.Time, error) {
	if count < 0 {
		return nil, newPrecondition("NextN count must be non-negative")
	}
	out := make([]time.Time, 0, count)
	cursor := nowUTC
	for i := 0; i < count; i++ {
		next, err := s.Next(cursor, tz)
		if err != nil {
			return nil, err
		}
		out = append(out, next)
		cursor = next
	}
	return out, nil
}

// nextCron implements the DST-aware cron evaluation algorithm:
//
//  1. Convert nowUTC to local time in tz.
//  2. If that local instant is ambiguous, subtract the zone's DST delta so
//     the search starts from an unambiguous, strictly earlier point (an
//     ambiguous starting point can otherwise yield a candidate
//     lexicographically earlier than nowUTC).
//  3. Walk candidate local wall-clock readings in forward order. Invalid
//     candidates are shifted forward by one hour (the historical, DST-delta-
//     agnostic choice). Ambiguous candidates contribute one or both UTC
//     interpretations depending on how soon the following occurrence is.
//  4. Return the smallest emitted UTC instant strictly greater than nowUTC.
func (s Schedule) nextCron(nowUTC time.Time, tz Zone) (time.Time, error) {
	nowLocal := tz.ToLocal(nowUTC)
	searchFrom := nowLocal
	if tz.IsAmbiguous(nowLocal) {
		searchFrom = nowLocal.Add(-tz.DSTDelta(tz.ToUTC(nowLocal)))
	}

	const batch = 8
	var best time.Time
	haveBest := false

	candidates := s.cron.nextLocalCandidates(searchFrom, batch)
	for i := 0; i < len(candidates); i++ {
		candidate := candidates[i]

		switch {
		case tz.IsInvalid(candidate):
			shifted := candidate.Add(time.Hour)
			utc := tz.ToUTC(shifted)
			if utc.After(nowUTC) && (!haveBest || utc.Before(best)) {
				best, haveBest = utc, true
			}
			// A non-ambiguous candidate resolved: stop once a result is
			// held and no still-unresolved ambiguous candidate remains
			// ahead of it.
			if haveBest && !anyAmbiguousBefore(candidates[i+1:], best, tz) {
				return best, nil
			}

		case tz.IsAmbiguous(candidate):
			first, second := tz.Offsets(candidate)
			// Determine "frequent vs rare" using the local gap to the
			// following cron occurrence.
			var followingLocal time.Time
			if i+1 < len(candidates) {
				followingLocal = candidates[i+1]
			} else {
				more := s.cron.nextLocalCandidates(candidate, 1)
				if len(more) > 0 {
					followingLocal = more[0]
				}
			}
			frequent := !followingLocal.IsZero() && followingLocal.Sub(candidate) < 4*time.Hour

			for _, utc := range pickAmbiguousCandidates(first, second, frequent) {
				if utc.After(nowUTC) && (!haveBest || utc.Before(best)) {
					best, haveBest = utc, true
				}
			}

		default:
			utc := tz.ToUTC(candidate)
			if utc.After(nowUTC) && (!haveBest || utc.Before(best)) {
				best, haveBest = utc, true
			}
			if haveBest && !anyAmbiguousBefore(candidates[i+1:], best, tz) {
				return best, nil
			}
		}
	}

	if haveBest {
		return best, nil
	}
	// Exceptionally sparse schedules (e.g. Feb 29 only) may need a wider
	// search; fall back to scanning further ahead.
	more := s.cron.nextLocalCandidates(searchFrom, batch*16)
	for _, candidate := range more {
		utc := resolveSingleCandidate(candidate, tz)
		if utc.After(nowUTC) && (!haveBest || utc.Before(best)) {
			best, haveBest = utc, true
		}
	}
	if haveBest {
		return best, nil
	}
	return time.Time{}, newPrecondition("no occurrence found for cron schedule within search horizon")
}

// anyAmbiguousBefore reports whether any candidate up to and including the
// point where it would map to before `before` is itself ambiguous and thus
// still needs full enumeration before we can trust `before` as the answer.
func anyAmbiguousBefore(rest []time.Time, before time.Time, tz Zone) bool {
	for _, c := range rest {
		utc := resolveSingleCandidate(c, tz)
		if utc.After(before) {
			return false
		}
		if tz.IsAmbiguous(c) {
			return true
		}
	}
	return false
}

func resolveSingleCandidate(candidate time.Time, tz Zone) time.Time {
	if tz.IsInvalid(candidate) {
		return tz.ToUTC(candidate.Add(time.Hour))
	}
	if tz.IsAmbiguous(candidate) {
		first, _ := tz.Offsets(candidate)
		return first
	}
	return tz.ToUTC(candidate)
}

// pickAmbiguousCandidates returns the UTC instants to consider for an
// ambiguous local occurrence: both interpretations for a "frequent" job
// (the following occurrence is under four local hours away), or only the
// earlier-offset interpretation for a "rare" job.
func pickAmbiguousCandidates(first, second time.Time, frequent bool) []time.Time {
	if frequent {
		return []time.Time{first, second}
	}
	return []time.Time{first}
}
