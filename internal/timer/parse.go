package timer

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ResolvePlaceholders substitutes "%key%" tokens in expr with values from
// vars before the expression is handed to ParseSchedule. Unknown
// placeholders are left untouched, matching the host config layer's
// "best effort" substitution rule: a typo'd placeholder surfaces as an
// invalid cron/duration string, not a silent empty expansion.
func ResolvePlaceholders(expr string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(expr, "%") {
		return expr
	}
	for key, val := range vars {
		expr = strings.ReplaceAll(expr, "%"+key+"%", val)
	}
	return expr
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// reTimeSpan matches the .NET/Azure WebJobs TimerTrigger TimeSpan format
// spec.md §6 names as the constant-schedule syntax: "[d.]hh:mm:ss[.fff]",
// e.g. "1.00:00:00" (1 day) or "00:00:30.500" (30.5s).
var reTimeSpan = regexp.MustCompile(`^\s*(?:(\d+)\.)?(\d{1,2}):(\d{2}):(\d{2})(?:\.(\d{1,3}))?\s*$`)

// ParseSchedule parses a schedule expression into a Schedule. Supported
// forms, checked in order:
//
//   - "cron:<expr>" / "interval:<dur>" / "every:<dur>" explicit prefixes
//   - a six-field cron expression ("sec min hour dom mon dow"), detected
//     by the presence of whitespace
//   - "[d.]hh:mm:ss[.fff]" as a constant interval — the TimeSpan format
//     spec.md §6 specifies
//   - "HH:MM" and a bare Go duration string ("55m", "2h30m") as constant
//     intervals; both are host conveniences, not part of the spec's
//     external interface
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, newConfigError("", newPrecondition("schedule expression must not be empty"))
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return Schedule{}, newConfigError("", newPrecondition("schedule expression must not be empty after 'cron:'"))
		}
		return NewCronSchedule(expr)
	case strings.HasPrefix(low, "interval:"):
		return parseIntervalSchedule(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return parseIntervalSchedule(s[len("every:"):])
	}

	if strings.ContainsAny(s, " \t") {
		return NewCronSchedule(s)
	}
	return parseIntervalSchedule(s)
}

func parseIntervalSchedule(v string) (Schedule, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Schedule{}, newConfigError("", newPrecondition("interval must not be empty"))
	}
	if reTimeSpan.MatchString(v) {
		return parseTimeSpanSchedule(v)
	}
	if reHHMM.MatchString(v) {
		return parseHHMMSchedule(v)
	}
	d, err := time.ParseDuration(v)
	if err == nil {
		return NewConstantSchedule(d)
	}
	return Schedule{}, newConfigError("", fmt.Errorf(
		"invalid schedule expression %q (expected a six-field cron expression, a TimeSpan like %q, HH:MM, or a Go duration like %q)",
		v, "1.00:00:00", "90s"))
}

func parseHHMMSchedule(v string) (Schedule, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return Schedule{}, newConfigError("", fmt.Errorf("invalid HH:MM %q", v))
	}
	var hh int
	for i := 0; i < len(m[1]); i++ {
		hh = hh*10 + int(m[1][i]-'0')
	}
	mm := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if mm > 59 {
		return Schedule{}, newConfigError("", fmt.Errorf("invalid minutes in %q", v))
	}
	return NewConstantSchedule(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
}

// parseTimeSpanSchedule parses "[d.]hh:mm:ss[.fff]" per spec.md §6.
// Submatches: [1]=days (optional), [2]=hh, [3]=mm, [4]=ss, [5]=fff (optional).
func parseTimeSpanSchedule(v string) (Schedule, error) {
	m := reTimeSpan.FindStringSubmatch(v)
	if len(m) != 6 {
		return Schedule{}, newConfigError("", fmt.Errorf("invalid TimeSpan %q", v))
	}
	days, hh, mm, ss, fff := m[1], m[2], m[3], m[4], m[5]

	var d int
	for i := 0; i < len(days); i++ {
		d = d*10 + int(days[i]-'0')
	}
	var h int
	for i := 0; i < len(hh); i++ {
		h = h*10 + int(hh[i]-'0')
	}
	if h > 23 {
		return Schedule{}, newConfigError("", fmt.Errorf("invalid hours in %q", v))
	}
	min := int(mm[0]-'0')*10 + int(mm[1]-'0')
	if min > 59 {
		return Schedule{}, newConfigError("", fmt.Errorf("invalid minutes in %q", v))
	}
	sec := int(ss[0]-'0')*10 + int(ss[1]-'0')
	if sec > 59 {
		return Schedule{}, newConfigError("", fmt.Errorf("invalid seconds in %q", v))
	}

	total := time.Duration(d)*24*time.Hour +
		time.Duration(h)*time.Hour +
		time.Duration(min)*time.Minute +
		time.Duration(sec)*time.Second

	if fff != "" {
		// right-pad to milliseconds: ".5" -> 500ms, ".50" -> 500ms, ".500" -> 500ms
		for len(fff) < 3 {
			fff += "0"
		}
		var frac int
		for i := 0; i < len(fff); i++ {
			frac = frac*10 + int(fff[i]-'0')
		}
		total += time.Duration(frac) * time.Millisecond
	}

	return NewConstantSchedule(total)
}
