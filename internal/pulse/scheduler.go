package pulse

import (
	"sync"
	"time"
)

// Scheduler keeps at most one wake-up timer pending, armed for the earliest
// deadline it has been asked about.
type Scheduler struct {
	clock Clock

	mu     sync.Mutex
	timer  Timer
	at     time.Time
	armed  bool
	gen    uint64
	closed bool
}

// NewScheduler creates an idle scheduler.
func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// RequestWakeup arranges for fn to run at or after at. A pending wake-up
// that is due no later than at already covers the request and is kept.
// It reports whether a new timer was armed.
func (s *Scheduler) RequestWakeup(at time.Time, fn func(now time.Time)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.armed && !s.at.After(at) {
		return false
	}

	s.stopLocked()
	s.gen++
	gen := s.gen
	s.at = at
	s.armed = true
	s.timer = s.clock.AfterFunc(wakeupDelay(s.clock.Now(), at), func() {
		s.fire(gen, fn)
	})
	return true
}

// Discharge drops the pending wake-up if it is due no later than upTo, for
// callers that have just done the work that wake-up would trigger.
func (s *Scheduler) Discharge(upTo time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.armed || s.at.After(upTo) {
		return false
	}
	s.stopLocked()
	return true
}

// Cancel drops the pending wake-up, if any. Later requests arm normally.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Armed returns the deadline the pending wake-up is armed for.
func (s *Scheduler) Armed() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.at, s.armed
}

// CancelAll stops the pending wake-up and refuses further requests.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.closed = true
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armed = false
	s.at = time.Time{}
	// A timer that already started firing sees a newer generation and bails.
	s.gen++
}

func (s *Scheduler) fire(gen uint64, fn func(time.Time)) {
	s.mu.Lock()
	if s.closed || !s.armed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.armed = false
	s.at = time.Time{}
	s.timer = nil
	s.mu.Unlock()

	fn(s.clock.Now())
}

// wakeupDelay rounds the wait up to whole seconds plus one, so the timer
// never fires before the deadline it was armed for.
func wakeupDelay(now, at time.Time) time.Duration {
	d := at.Sub(now)
	if d < 0 {
		d = 0
	}
	secs := d / time.Second
	if d%time.Second != 0 {
		secs++
	}
	return (secs + 1) * time.Second
}
