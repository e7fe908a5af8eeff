// Package shift holds the pure time rules of the roster: parsing time-of-day
// values, resolving a person's schedule into a concrete interval, and
// classifying that interval against the current instant.
package shift

import (
	"time"
)

// DefaultDuration is the length of a shift started or rescheduled by an operator.
const DefaultDuration = 75 * time.Minute

// Schedule is the stored schedule of a roster entry. Empty strings and nil
// instants mean "not set".
type Schedule struct {
	StartTime string
	EndTime   string
	StartAt   *time.Time
	EndAt     *time.Time
}

// Interval is a resolved [Start, End) window. A zero Start or End means the
// bound is absent.
type Interval struct {
	Start time.Time
	End   time.Time
}

// HasStart reports whether the interval has a start bound.
func (iv Interval) HasStart() bool { return !iv.Start.IsZero() }

// HasEnd reports whether the interval has an end bound.
func (iv Interval) HasEnd() bool { return !iv.End.IsZero() }

// Resolve turns a schedule into an interval for the civil day of now.
//
// Full instants win when both are stored. Otherwise the time-of-day pair is
// placed on today's date in now's location, and an end that does not come
// after the start is moved to the next day. Stored strings that do not parse
// resolve as if absent.
func Resolve(s Schedule, now time.Time) Interval {
	loc := now.Location()
	if s.StartAt != nil && s.EndAt != nil {
		return Interval{Start: s.StartAt.In(loc), End: s.EndAt.In(loc)}
	}

	startTOD, err := ParseTimeOfDay(s.StartTime)
	if err != nil {
		return Interval{}
	}
	iv := Interval{Start: startTOD.On(now)}

	endTOD, err := ParseTimeOfDay(s.EndTime)
	if err != nil {
		return iv
	}
	iv.End = RollOver(iv.Start, endTOD.On(now))
	return iv
}

// RollOver returns end moved forward one day when it does not come after start.
func RollOver(start, end time.Time) time.Time {
	if !end.After(start) {
		return end.AddDate(0, 0, 1)
	}
	return end
}

// Window returns a shift of DefaultDuration starting at start.
func Window(start time.Time) Interval {
	return Interval{Start: start, End: RollOver(start, start.Add(DefaultDuration))}
}
