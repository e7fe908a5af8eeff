// Package clock supplies the wall-clock source used by the roster. Every
// instant it hands out is expressed in one civil time zone and carries no
// sub-second component, so day boundaries and status comparisons never depend
// on the host locale.
package clock

import (
	"fmt"
	"time"
	_ "time/tzdata" // zone database fallback for minimal container images
)

// DefaultZone is the civil zone of the reference deployment.
const DefaultZone = "America/Sao_Paulo"

// DateLayout is the civil date format used for history days.
const DateLayout = "2006-01-02"

// Zoned reads the system clock and normalises it into a fixed location.
type Zoned struct {
	loc    *time.Location
	source func() time.Time
}

// New returns a clock anchored to loc. A nil location falls back to UTC.
func New(loc *time.Location) *Zoned {
	if loc == nil {
		loc = time.UTC
	}
	return &Zoned{loc: loc, source: time.Now}
}

// Load resolves the named zone and returns a clock anchored to it.
func Load(name string) (*Zoned, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return New(loc), nil
}

// Now returns the current instant in the clock's zone, truncated to the second.
func (z *Zoned) Now() time.Time {
	return Normalize(z.source(), z.loc)
}

// Location reports the zone the clock is anchored to.
func (z *Zoned) Location() *time.Location {
	return z.loc
}

// NowFunc adapts the clock for constructors that take a func() time.Time.
func (z *Zoned) NowFunc() func() time.Time {
	return z.Now
}

// Normalize converts t into loc and drops the sub-second part.
func Normalize(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Truncate(time.Second)
}

// Day formats the civil date of t.
func Day(t time.Time) string {
	return t.Format(DateLayout)
}
