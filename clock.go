package mpvframe

import (
	"math"
	"sync/atomic"
)

// ClockSnapshot is a consistent pair of playback clock values in seconds.
type ClockSnapshot struct {
	Duration float64
	Position float64
}

// Progress returns Position/Duration clamped to [0, 1]. ok is false while the
// duration is unknown (zero or negative) or either value is not finite.
func (s ClockSnapshot) Progress() (ratio float64, ok bool) {
	if !finite(s.Duration) || !finite(s.Position) || s.Duration <= 0 {
		return 0, false
	}
	ratio = s.Position / s.Duration
	if ratio < 0 {
		ratio = 0
	} else if ratio > 1 {
		ratio = 1
	}
	return ratio, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Clock holds the playback duration and position. Writers replace the whole
// snapshot atomically, so readers on any goroutine see a matching pair.
type Clock struct {
	state atomic.Pointer[ClockSnapshot]
}

// NewClock creates a clock with unknown duration.
func NewClock() *Clock {
	c := &Clock{}
	c.state.Store(&ClockSnapshot{})
	return c
}

// Snapshot returns the current values.
func (c *Clock) Snapshot() ClockSnapshot {
	if s := c.state.Load(); s != nil {
		return *s
	}
	return ClockSnapshot{}
}

// Progress is shorthand for Snapshot().Progress().
func (c *Clock) Progress() (float64, bool) {
	return c.Snapshot().Progress()
}

// SetDuration stores a new duration.
func (c *Clock) SetDuration(seconds float64) {
	c.update(func(s *ClockSnapshot) { s.Duration = seconds })
}

// SetPosition stores a new position.
func (c *Clock) SetPosition(seconds float64) {
	c.update(func(s *ClockSnapshot) { s.Position = seconds })
}

// Reset clears both values.
func (c *Clock) Reset() {
	c.state.Store(&ClockSnapshot{})
}

func (c *Clock) update(fn func(*ClockSnapshot)) {
	for {
		old := c.state.Load()
		next := ClockSnapshot{}
		if old != nil {
			next = *old
		}
		fn(&next)
		if c.state.CompareAndSwap(old, &next) {
			return
		}
	}
}
