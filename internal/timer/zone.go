package timer

import (
	"strings"
	"time"
)

// Zone wraps a *time.Location and answers the civil-time questions the
// cron evaluator needs: UTC<->local conversion, whether a local instant is
// invalid (skipped spring-forward hour) or ambiguous (repeated fall-back
// hour), and what UTC offsets an ambiguous local instant maps to.
//
// Go's time package never reports "invalid" local times directly — it
// normalizes them by rolling forward — so Zone detects invalidity and
// ambiguity by probing the offset on either side of the candidate.
type Zone struct {
	loc *time.Location
}

// UTC is the zero-value-friendly UTC zone.
var UTC = Zone{loc: time.UTC}

// LoadZone resolves an IANA (or platform-native) time zone name. An empty
// name resolves to UTC, matching the "default is UTC" rule.
func LoadZone(name string) (Zone, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, err
	}
	return Zone{loc: loc}, nil
}

// MustLoadZone is LoadZone but panics on error; used for compile-time-known
// zone names in tests.
func MustLoadZone(name string) Zone {
	z, err := LoadZone(name)
	if err != nil {
		panic(err)
	}
	return z
}

func (z Zone) location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

// String returns the zone's IANA/display name.
func (z Zone) String() string { return z.location().String() }

// ToLocal converts a UTC instant to civil time in the zone.
func (z Zone) ToLocal(utc time.Time) time.Time {
	return utc.In(z.location())
}

// ToUTC converts a civil-time wall clock reading to a UTC instant, using
// Go's default "nearest correct" resolution for invalid/ambiguous times
// (it does not itself decide invalidity/ambiguity - callers use IsInvalid/
// IsAmbiguous/Offsets to do that first).
func (z Zone) ToUTC(local time.Time) time.Time {
	wall := stripZone(local)
	return time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(), z.location()).UTC()
}

func stripZone(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// IsInvalid reports whether the given civil-time wall clock reading falls
// in a skipped (spring-forward) hour: no UTC instant maps back to it.
//
// Detection: build the wall-clock instant in the zone, then re-derive its
// local wall-clock reading from the resulting UTC instant. If Go rolled
// the wall-clock reading forward (because the literal reading does not
// exist), the two readings disagree.
func (z Zone) IsInvalid(local time.Time) bool {
	wall := stripZone(local)
	resolved := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(), z.location())
	return !sameWallClock(wall, resolved)
}

// IsAmbiguous reports whether the given civil-time wall clock reading
// falls in a repeated (fall-back) hour: two distinct UTC instants both
// read back as this local time.
//
// Detection: shift the candidate instant by plus and minus the zone's DST
// delta; if either shifted instant re-renders (in this zone) to the exact
// same wall-clock reading, two distinct UTC instants share that reading.
func (z Zone) IsAmbiguous(local time.Time) bool {
	if z.IsInvalid(local) {
		return false
	}
	wall := stripZone(local)
	candidate := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(), z.location())
	_, twin := z.findTwin(wall, candidate)
	return !twin.IsZero()
}

// Offsets returns the two UTC instants an ambiguous local instant can
// resolve to, earlier instant first.
func (z Zone) Offsets(local time.Time) (first, second time.Time) {
	wall := stripZone(local)
	candidate := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(), z.location())
	_, twin := z.findTwin(wall, candidate)
	a, b := candidate.UTC(), twin.UTC()
	if a.Before(b) {
		return a, b
	}
	return b, a
}

// findTwin looks for a second absolute instant, distinct from candidate,
// that renders to the same wall-clock reading in this zone.
func (z Zone) findTwin(wall, candidate time.Time) (time.Duration, time.Time) {
	delta := z.DSTDelta(candidate)
	if delta <= 0 {
		return 0, time.Time{}
	}
	for _, shift := range [2]time.Duration{delta, -delta} {
		probe := candidate.Add(shift)
		if probe.Equal(candidate) {
			continue
		}
		if sameWallClock(wall, stripZone(probe.In(z.location()))) {
			return shift, probe
		}
	}
	return 0, time.Time{}
}

// DSTDelta returns the absolute DST adjustment rule delta covering the
// given instant: the largest difference between that instant's offset and
// the offset at the same instant one to eleven months later (a cheap,
// robust way to learn "how big is the DST jump in this zone" without
// parsing the tzdata rule table directly). Sampling every month, rather
// than one point six months away, keeps an instant late in the DST period
// (such as the first pass through a fall-back hour) from being compared
// only against other DST instants.
func (z Zone) DSTDelta(t time.Time) time.Duration {
	_, off1 := t.In(z.location()).Zone()
	delta := 0
	for m := 1; m < 12; m++ {
		_, off2 := t.AddDate(0, m, 0).In(z.location()).Zone()
		d := off1 - off2
		if d < 0 {
			d = -d
		}
		if d > delta {
			delta = d
		}
	}
	return time.Duration(delta) * time.Second
}

func sameWallClock(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day() &&
		a.Hour() == b.Hour() && a.Minute() == b.Minute() && a.Second() == b.Second() && a.Nanosecond() == b.Nanosecond()
}
