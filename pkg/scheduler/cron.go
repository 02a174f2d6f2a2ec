package scheduler

import (
	"strings"
	"time"
)

// Schedule intervals for the recognized cadences.
const (
	IntervalHourly = time.Hour
	IntervalDaily  = 24 * time.Hour
	IntervalWeekly = 7 * 24 * time.Hour
)

// scheduleTable maps recognized cron patterns and aliases to a fixed
// interval. The scheduler is interval-based: after each run completes the
// next fires interval later, regardless of run duration.
var scheduleTable = map[string]time.Duration{
	"* * * * 0": IntervalWeekly,
	"0 0 * * 0": IntervalWeekly,
	"@weekly":   IntervalWeekly,
	"0 0 * * *": IntervalDaily,
	"@daily":    IntervalDaily,
	"@midnight": IntervalDaily,
	"0 * * * *": IntervalHourly,
	"@hourly":   IntervalHourly,
}

// ParseSchedule maps a cron expression to its run interval. Unrecognized
// expressions default to weekly; the second return value reports whether
// the expression was recognized so callers can surface the fallback.
func ParseSchedule(expr string) (time.Duration, bool) {
	normalized := strings.Join(strings.Fields(strings.TrimSpace(expr)), " ")
	if interval, ok := scheduleTable[normalized]; ok {
		return interval, true
	}
	return IntervalWeekly, false
}

// NextFireTime returns when the schedule should next fire given the last
// completion time.
func NextFireTime(lastFired time.Time, interval time.Duration) time.Time {
	return lastFired.Add(interval)
}
