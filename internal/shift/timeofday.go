package shift

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimeOfDay is returned for values that are not a valid HH:MM clock time.
var ErrInvalidTimeOfDay = errors.New("invalid time of day")

// TimeOfDay is an hour and minute on an unspecified date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (a single hour digit is accepted).
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	value := strings.TrimSpace(raw)
	hourPart, minutePart, ok := strings.Cut(value, ":")
	if !ok || len(hourPart) == 0 || len(hourPart) > 2 || len(minutePart) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, raw)
	}

	hour, err := strconv.Atoi(hourPart)
	if err != nil || !isDigits(hourPart) {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, raw)
	}
	minute, err := strconv.Atoi(minutePart)
	if err != nil || !isDigits(minutePart) {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, raw)
	}
	if hour > 23 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q out of range", ErrInvalidTimeOfDay, raw)
	}

	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// FromTime extracts the time of day of t.
func FromTime(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

// On places the time of day on day's civil date, in day's location, with zero seconds.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
