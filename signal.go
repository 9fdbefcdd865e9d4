package mpvframe

import "sync/atomic"

// Signal is a single-slot mailbox. Notify may be called from any goroutine
// and never blocks; notifications that arrive before Take collapse into one.
// Take clears the slot, so each burst of notifications is consumed once.
type Signal struct {
	pending atomic.Bool
	ch      chan struct{}

	notified  atomic.Uint64
	collapsed atomic.Uint64
	taken     atomic.Uint64
}

// SignalStats counts Signal activity.
type SignalStats struct {
	Notified  uint64 // Notify calls
	Collapsed uint64 // Notify calls that found the slot already set
	Taken     uint64 // Take calls that consumed a notification
}

// NewSignal creates an empty Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Notify sets the slot.
func (s *Signal) Notify() {
	s.notified.Add(1)
	if s.pending.Swap(true) {
		s.collapsed.Add(1)
		return
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Take reports whether the slot was set and clears it.
func (s *Signal) Take() bool {
	if !s.pending.Swap(false) {
		return false
	}
	select {
	case <-s.ch:
	default:
	}
	s.taken.Add(1)
	return true
}

// Pending reports whether the slot is set without clearing it.
func (s *Signal) Pending() bool { return s.pending.Load() }

// C returns a channel that receives after Notify. It is a wake-up hint for
// idle waits; callers still consume the notification with Take.
func (s *Signal) C() <-chan struct{} { return s.ch }

// Stats returns a snapshot of the counters.
func (s *Signal) Stats() SignalStats {
	return SignalStats{
		Notified:  s.notified.Load(),
		Collapsed: s.collapsed.Load(),
		Taken:     s.taken.Load(),
	}
}
