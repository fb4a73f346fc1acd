package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Unbounded marks a repeating-interval expression with no recurrence limit
// ("R/..." with the digits omitted).
const Unbounded = -1

// Parsed is the decoded form of an ISO-8601 repeating-interval expression
// "Rn/start-instant/period".
type Parsed struct {
	Recurrences int // Unbounded, 0 (exhausted), or positive
	Start       time.Time
	Interval    time.Duration
}

var repeatingIntervalRE = regexp.MustCompile(`^R(\d*)/([^/]+)/(.+)$`)

// ParseExpression decodes a repeating-interval expression in the given IANA
// time zone. next-fire-instant (Start here) is returned in absolute UTC.
// It returns false on any syntactic failure, never an error — parse
// failures are recoverable per spec §7(b).
func ParseExpression(expr, tz string) (Parsed, bool) {
	m := repeatingIntervalRE.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return Parsed{}, false
	}

	recurrences := Unbounded
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 0 {
			return Parsed{}, false
		}
		recurrences = n
	}

	loc := time.UTC
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return Parsed{}, false
		}
		loc = l
	}

	start, err := time.ParseInLocation(time.RFC3339, m[2], loc)
	if err != nil {
		return Parsed{}, false
	}

	interval, err := parseISODuration(m[3])
	if err != nil {
		return Parsed{}, false
	}

	return Parsed{
		Recurrences: recurrences,
		Start:       start.UTC(),
		Interval:    interval,
	}, true
}

// FormatExpression re-serializes a repeating-interval expression, the
// inverse of ParseExpression (modulo the time zone, which the stream head
// carries separately).
func FormatExpression(recurrences int, start time.Time, interval time.Duration) string {
	n := ""
	if recurrences != Unbounded {
		n = strconv.Itoa(recurrences)
	}
	return fmt.Sprintf("R%s/%s/%s", n, start.UTC().Format(time.RFC3339), formatISODuration(interval))
}

var isoDurationRE = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// parseISODuration supports the subset of ISO-8601 durations the scheduler
// needs: years/months/weeks/days in the date part, hours/minutes/(fractional)
// seconds in the time part. Years are treated as 365 days and months as 30
// days, which is sufficient for the scheduler's own recurrence bookkeeping
// (it never needs calendar-exact month arithmetic).
func parseISODuration(s string) (time.Duration, error) {
	m := isoDurationRE.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "" {
		return 0, fmt.Errorf("invalid ISO-8601 duration: %q", s)
	}

	var d time.Duration
	if m[1] != "" {
		n, _ := strconv.Atoi(m[1])
		d += time.Duration(n) * 365 * 24 * time.Hour
	}
	if m[2] != "" {
		n, _ := strconv.Atoi(m[2])
		d += time.Duration(n) * 30 * 24 * time.Hour
	}
	if m[3] != "" {
		n, _ := strconv.Atoi(m[3])
		d += time.Duration(n) * 7 * 24 * time.Hour
	}
	if m[4] != "" {
		n, _ := strconv.Atoi(m[4])
		d += time.Duration(n) * 24 * time.Hour
	}
	if m[5] != "" {
		n, _ := strconv.Atoi(m[5])
		d += time.Duration(n) * time.Hour
	}
	if m[6] != "" {
		n, _ := strconv.Atoi(m[6])
		d += time.Duration(n) * time.Minute
	}
	if m[7] != "" {
		secs, _ := strconv.ParseFloat(m[7], 64)
		d += time.Duration(secs * float64(time.Second))
	}
	return d, nil
}

func formatISODuration(d time.Duration) string {
	if d <= 0 {
		return "PT0S"
	}
	hours := int64(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int64(d / time.Minute)
	d -= time.Duration(minutes) * time.Minute
	seconds := d.Seconds()

	var b strings.Builder
	b.WriteString("PT")
	if hours > 0 {
		fmt.Fprintf(&b, "%dH", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%dM", minutes)
	}
	if seconds > 0 || (hours == 0 && minutes == 0) {
		if seconds == float64(int64(seconds)) {
			fmt.Fprintf(&b, "%dS", int64(seconds))
		} else {
			fmt.Fprintf(&b, "%gS", seconds)
		}
	}
	return b.String()
}
