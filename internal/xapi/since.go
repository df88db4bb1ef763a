package xapi

import (
	"regexp"
	"strconv"
	"time"
)

// relSinceRe matches the relative shorthand: an integer followed by a unit,
// e.g. "30m", "2h", "7d".
var relSinceRe = regexp.MustCompile(`^(\d+)([mhd])$`)

// ParseSince resolves a since-spec into an RFC3339 start time.  Accepted
// forms are the relative shorthand (minutes/hours/days before now) and an
// absolute RFC3339 timestamp.  Anything else reports ok=false, which callers
// treat as "no time filter": permissive by policy, not an error.
func ParseSince(spec string) (string, bool) {
	ts, ok := parseSinceAt(spec, time.Now())
	if !ok {
		return "", false
	}
	return ts.UTC().Format(time.RFC3339), true
}

func parseSinceAt(spec string, now time.Time) (time.Time, bool) {
	if spec == "" {
		return time.Time{}, false
	}
	if m := relSinceRe.FindStringSubmatch(spec); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		var unit time.Duration
		switch m[2] {
		case "m":
			unit = time.Minute
		case "h":
			unit = time.Hour
		case "d":
			unit = 24 * time.Hour
		}
		return now.Add(-time.Duration(n) * unit), true
	}
	if ts, err := time.Parse(time.RFC3339, spec); err == nil {
		return ts, true
	}
	return time.Time{}, false
}
