// Package schedule parses the crontab expressions stored as a transmission
// queue's load frequency and decides when a queue is due for refresh.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed 5-field crontab expression. Each field is a bitset of
// the permitted values.
type Schedule struct {
	minute uint64
	hour   uint64
	dom    uint64
	month  uint64
	dow    uint64
	// Vixie cron: when both day fields are restricted either may match.
	domStar bool
	dowStar bool
}

var macros = map[string]string{
	"@hourly":   "0 * * * *",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@weekly":   "0 0 * * 0",
	"@monthly":  "0 0 1 * *",
}

type bounds struct {
	name     string
	min, max int
}

var fieldBounds = [5]bounds{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7},
}

// Parse parses "minute hour day-of-month month day-of-week" or one of the
// @hourly, @daily, @weekly, @monthly macros. Day-of-week 7 is Sunday.
func Parse(expr string) (*Schedule, error) {
	expr = strings.TrimSpace(expr)
	if m, ok := macros[strings.ToLower(expr)]; ok {
		expr = m
	}
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("schedule %q: want 5 fields, got %d", expr, len(fields))
	}
	var sets [5]uint64
	for i, field := range fields {
		set, err := parseField(field, fieldBounds[i])
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %s: %w", expr, fieldBounds[i].name, err)
		}
		sets[i] = set
	}
	dow := sets[4]
	if dow&(1<<7) != 0 {
		dow = dow&^(1<<7) | 1
	}
	return &Schedule{
		minute:  sets[0],
		hour:    sets[1],
		dom:     sets[2],
		month:   sets[3],
		dow:     dow,
		domStar: strings.HasPrefix(fields[2], "*"),
		dowStar: strings.HasPrefix(fields[4], "*"),
	}, nil
}

func parseField(field string, b bounds) (uint64, error) {
	var set uint64
	for _, part := range strings.Split(field, ",") {
		if part == "" {
			return 0, fmt.Errorf("empty list element in %q", field)
		}
		rng, stepText, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepText)
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("invalid step %q", stepText)
			}
			step = n
		}
		lo, hi := b.min, b.max
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			loText, hiText, _ := strings.Cut(rng, "-")
			var err error
			if lo, err = strconv.Atoi(loText); err != nil {
				return 0, fmt.Errorf("invalid range start %q", loText)
			}
			if hi, err = strconv.Atoi(hiText); err != nil {
				return 0, fmt.Errorf("invalid range end %q", hiText)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return 0, fmt.Errorf("invalid value %q", rng)
			}
			lo, hi = v, v
			if hasStep {
				hi = b.max
			}
		}
		if lo < b.min || hi > b.max || lo > hi {
			return 0, fmt.Errorf("%d-%d outside [%d, %d]", lo, hi, b.min, b.max)
		}
		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}
	return set, nil
}

func has(set uint64, v int) bool {
	return set&(1<<uint(v)) != 0
}

func (s *Schedule) dayMatches(t time.Time) bool {
	domOK := has(s.dom, t.Day())
	dowOK := has(s.dow, int(t.Weekday()))
	if s.domStar || s.dowStar {
		return domOK && dowOK
	}
	return domOK || dowOK
}

// Next returns the first activation strictly after from, in from's location.
// The zero time is returned when nothing fires within five years.
func (s *Schedule) Next(from time.Time) time.Time {
	loc := from.Location()
	t := from.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)
	for t.Before(limit) {
		switch {
		case !has(s.month, int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
		case !s.dayMatches(t):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
		case !has(s.hour, t.Hour()):
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
		case !has(s.minute, t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t
		}
	}
	return time.Time{}
}

// Due reports whether a queue with the given load frequency should run at
// now. An empty expression never runs; a queue that never ran is due at once.
// Times are evaluated in loc.
func Due(expr string, lastRun *time.Time, now time.Time, loc *time.Location) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return false, nil
	}
	s, err := Parse(expr)
	if err != nil {
		return false, err
	}
	if lastRun == nil || lastRun.IsZero() {
		return true, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	next := s.Next(lastRun.In(loc))
	return !next.IsZero() && !next.After(now.In(loc)), nil
}
