// Package dates parses human-friendly time expressions for CLI date flags,
// e.g. "2h ago", "yesterday", "monday".
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Matches: "2h ago", "30m ago", "1d ago", "2w ago", "1mo ago"
var relativeAgoRe = regexp.MustCompile(`^(\d+)(mo|w|d|h|m)\s*ago$`)

// Matches: "30m", "2h", "1d" (future offsets)
var relativeFutureRe = regexp.MustCompile(`^(\d+)(mo|w|d|h|m)$`)

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "weds": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseRelativeTime parses a time expression relative to now (UTC).
//
// Supported forms:
//   - relative past: "2h ago", "1d ago", "2w ago", "1mo ago"
//   - relative future: "30m", "2h", "1d"
//   - named: "yesterday", "today", "tomorrow"
//   - weekdays: "monday", "next friday", "this tuesday"
//   - date: "2024-01-15" (start of day, UTC)
//   - RFC3339: "2024-01-15T10:00:00Z"
//
// Matching is case-insensitive. Months are approximated as 30 days.
func ParseRelativeTime(input string, now time.Time) (time.Time, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}

	lower := strings.ToLower(raw)

	switch lower {
	case "yesterday":
		return startOfDay(now.AddDate(0, 0, -1)), nil
	case "today":
		return startOfDay(now), nil
	case "tomorrow":
		return startOfDay(now.AddDate(0, 0, 1)), nil
	}

	if t, ok := parseWeekday(lower, now); ok {
		return t, nil
	}

	if caps := relativeAgoRe.FindStringSubmatch(lower); caps != nil {
		return applyRelative(raw, now, caps[1], caps[2], -1)
	}
	if caps := relativeFutureRe.FindStringSubmatch(lower); caps != nil {
		return applyRelative(raw, now, caps[1], caps[2], 1)
	}

	if t, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("invalid time expression %q", raw)
}

func startOfDay(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

func parseWeekday(input string, now time.Time) (time.Time, bool) {
	s := strings.TrimSpace(input)
	next := false
	if rest, found := strings.CutPrefix(s, "next "); found {
		s = strings.TrimSpace(rest)
		next = true
	} else if rest, found := strings.CutPrefix(s, "this "); found {
		s = strings.TrimSpace(rest)
	}

	target, ok := weekdays[s]
	if !ok {
		return time.Time{}, false
	}

	base := startOfDay(now)
	delta := int(target) - int(base.Weekday())
	if delta < 0 {
		delta += 7
	}
	if next && delta == 0 {
		delta = 7
	}
	return base.AddDate(0, 0, delta), true
}

func applyRelative(raw string, now time.Time, number, unit string, direction int) (time.Time, error) {
	value, err := strconv.Atoi(number)
	if err != nil || value < 1 {
		return time.Time{}, fmt.Errorf("invalid relative time %q", raw)
	}

	n := value * direction
	switch unit {
	case "mo":
		// Approximate months as 30 days.
		return now.AddDate(0, 0, 30*n), nil
	case "w":
		return now.AddDate(0, 0, 7*n), nil
	case "d":
		return now.AddDate(0, 0, n), nil
	case "h":
		return now.Add(time.Duration(n) * time.Hour), nil
	case "m":
		return now.Add(time.Duration(n) * time.Minute), nil
	}
	return time.Time{}, fmt.Errorf("invalid time unit %q", unit)
}
