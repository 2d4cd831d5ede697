package draft

import (
	"sync"
	"time"
)

// scheduler owns at most one pending timer. Scheduling again before the
// timer fires replaces it, which is exactly the debounce contract: the
// callback runs once, after the last call's delay has fully elapsed.
type scheduler struct {
	mu    sync.Mutex
	timer *time.Timer
}

// Schedule arms the timer to run fn after d, replacing any pending timer.
func (s *scheduler) Schedule(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d, fn)
}

// Stop cancels the pending timer, if any.
func (s *scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
