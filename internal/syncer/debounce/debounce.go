// Package debounce coalesces bursts of trigger signals into one delayed
// action per named task.
package debounce

import (
	"sync"
	"time"

	"github.com/UnderPressurePH7/platoon-widget/pkg/metrics"
)

// Scheduler runs at most one pending timer per task id. Scheduling a task
// that is already pending supersedes the earlier timer: the delay restarts
// and only the latest fn ever fires.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{timers: make(map[string]*time.Timer)}
}

// Schedule arms (or re-arms) the timer for task. When delay elapses with no
// further Schedule calls for that id, fn runs exactly once on the timer
// goroutine.
func (s *Scheduler) Schedule(task string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[task]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		// A reset may have raced the firing timer; only the current
		// owner of the slot gets to run.
		current := s.timers[task] == t
		if current {
			delete(s.timers, task)
		}
		s.mu.Unlock()
		if current {
			metrics.RecordDebounceFire(task)
			fn()
		}
	})
	s.timers[task] = t
	metrics.RecordDebounceSchedule(task)
}

// Pending reports whether a timer is armed for task.
func (s *Scheduler) Pending(task string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[task]
	return ok
}

// Reset clears all pending timers without firing them. Used when state is
// being discarded wholesale so no stale sync fires over discarded data.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for task, t := range s.timers {
		t.Stop()
		delete(s.timers, task)
	}
}
