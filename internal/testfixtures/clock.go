package testfixtures

import (
	"sync"
	"time"
)

// Clock is a settable time source for tests. Every instant it returns is
// expressed in the clock's location.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock at start. A zero start uses ReferenceTime.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the current instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now for constructor injection.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t, converted into the clock's location.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t.In(c.current.Location())
	c.mu.Unlock()
}

// At moves the clock to hour:minute on its current civil day.
func (c *Clock) At(hour, minute int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	y, m, d := c.current.Date()
	c.current = time.Date(y, m, d, hour, minute, 0, 0, c.current.Location())
	return c.current
}

// Advance moves the clock forward by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// NextDay moves the clock to the same time of day on the following date.
func (c *Clock) NextDay() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.AddDate(0, 0, 1)
	return c.current
}

// Day returns the civil date of the current instant as YYYY-MM-DD.
func (c *Clock) Day() string {
	return c.Now().Format("2006-01-02")
}
