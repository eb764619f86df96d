package logic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ScheduleEntry is one daily feeding time.
type ScheduleEntry struct {
	Minute  int // minutes since midnight
	Enabled bool
}

const minutesPerDay = 24 * 60

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("parse clock %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("parse clock %q: bad hour", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("parse clock %q: bad minute", s)
	}
	return hour*60 + minute, nil
}

// FormatClock formats minutes since midnight as "HH:MM".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// Schedule holds the feeding times set by the network collaborator and
// derives the next feeding time from them.
type Schedule struct {
	loc     *time.Location
	entries []ScheduleEntry
	next    time.Time // zero = none
}

// NewSchedule creates an empty schedule evaluated in loc (UTC if nil).
func NewSchedule(loc *time.Location) *Schedule {
	if loc == nil {
		loc = time.UTC
	}
	return &Schedule{loc: loc}
}

// Set replaces the whole entry set and recomputes the next feeding time.
func (s *Schedule) Set(entries []ScheduleEntry, now time.Time) {
	s.entries = append([]ScheduleEntry(nil), entries...)
	s.next = s.compute(now)
}

// Entries returns a copy of the current entry set.
func (s *Schedule) Entries() []ScheduleEntry {
	return append([]ScheduleEntry(nil), s.entries...)
}

// HasActive reports whether any entry is enabled.
func (s *Schedule) HasActive() bool {
	for _, e := range s.entries {
		if e.Enabled {
			return true
		}
	}
	return false
}

// Next returns the next feeding time, or false if there is none. The stored
// value is recomputed once time has moved past it.
func (s *Schedule) Next(now time.Time) (time.Time, bool) {
	if !s.next.IsZero() && !now.Before(s.next) {
		s.next = s.compute(now)
	}
	return s.next, !s.next.IsZero()
}

// Due reports whether a feeding time has been reached and, if so, advances
// to the following one. It returns true at most once per feeding time.
func (s *Schedule) Due(now time.Time) bool {
	if s.next.IsZero() || now.Before(s.next) {
		return false
	}
	s.next = s.compute(now)
	return true
}

// compute finds the earliest enabled entry strictly after the current minute
// today, or the earliest one tomorrow.
func (s *Schedule) compute(now time.Time) time.Time {
	local := now.In(s.loc)
	current := local.Hour()*60 + local.Minute()

	best := -1
	bestDiff := minutesPerDay + 1
	for _, e := range s.entries {
		if !e.Enabled {
			continue
		}
		diff := e.Minute - current
		if diff <= 0 {
			diff += minutesPerDay
		}
		if diff < bestDiff {
			best, bestDiff = e.Minute, diff
		}
	}
	if best < 0 {
		return time.Time{}
	}

	day := local.Day()
	if best <= current {
		day++
	}
	return time.Date(local.Year(), local.Month(), day, best/60, best%60, 0, 0, s.loc)
}
