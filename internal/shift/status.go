package shift

import (
	"fmt"
	"strings"
	"time"
)

// Status is the traffic-light state of a roster entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusDone    Status = "done"
)

// legacy values written by the previous service generation.
var legacyStatuses = map[string]Status{
	"🔴": StatusPending,
	"🟡": StatusActive,
	"🟢": StatusDone,
}

// ParseStatus accepts the canonical names and the legacy emoji markers.
func ParseStatus(raw string) (Status, error) {
	value := strings.TrimSpace(raw)
	if s, ok := legacyStatuses[value]; ok {
		return s, nil
	}
	s := Status(strings.ToLower(value))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Valid reports whether s is one of the three known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusDone:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Classify maps now and a resolved interval to a status. The result depends
// only on its arguments.
func Classify(now time.Time, iv Interval) Status {
	if !iv.HasStart() || now.Before(iv.Start) {
		return StatusPending
	}
	if !iv.HasEnd() || now.Before(iv.End) {
		return StatusActive
	}
	return StatusDone
}
