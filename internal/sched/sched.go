// Package sched is a small delay scheduler for self-rescheduling tasks.
// A task runs, then re-enqueues itself a fixed delay after it finishes,
// so slow runs stretch the interval instead of stacking up. Stop cancels
// pending timers but never interrupts a run already in flight.
package sched

import (
	"sync"
	"time"
)

type Scheduler struct {
	mu      sync.Mutex
	timers  map[int64]*time.Timer
	nextID  int64
	stopped bool
}

func New() *Scheduler {
	return &Scheduler{timers: make(map[int64]*time.Timer)}
}

// After runs fn on its own goroutine once the delay elapses. Returns false
// if the scheduler is already stopped.
func (s *Scheduler) After(d time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	id := s.nextID
	s.nextID++
	s.timers[id] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		fn()
	})
	return true
}

// Pending reports how many timers have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels all pending timers and rejects new ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
