// Package sched is a discrete-event scheduler that is advanced explicitly by its host.
//
// Devices never start goroutines or wall-clock timers of their own. Anything that has to happen
// "later" (a transmitter becoming ready again, the next character of a paced input string) is
// queued here and runs when the host calls Advance, either from a test with a synthetic clock
// or from a real-time loop driven by a time.Ticker.
package sched

import (
	"container/heap"
	"sync"
	"time"
)

type Event struct {
	at    time.Duration
	seq   uint64
	fn    func()
	index int

	cancelled bool
}

// At returns the simulated time the event is due.
func (e *Event) At() time.Duration { return e.at }

type Scheduler struct {
	mu  sync.Mutex
	now time.Duration
	seq uint64
	q   eventQueue
}

func New() *Scheduler {
	return &Scheduler{
		q: make(eventQueue, 0, 16),
	}
}

// Now returns the current simulated time.
func (s *Scheduler) Now() time.Duration {
	defer s.mu.Unlock()
	s.mu.Lock()
	return s.now
}

// After queues fn to run once simulated time has advanced by d.
// Events due at the same time run in the order they were queued.
func (s *Scheduler) After(d time.Duration, fn func()) *Event {
	if d < 0 {
		d = 0
	}

	defer s.mu.Unlock()
	s.mu.Lock()

	s.seq++
	e := &Event{
		at:  s.now + d,
		seq: s.seq,
		fn:  fn,
	}
	heap.Push(&s.q, e)
	return e
}

// Cancel removes e from the queue. It reports false if e already ran or was cancelled.
func (s *Scheduler) Cancel(e *Event) bool {
	if e == nil {
		return false
	}

	defer s.mu.Unlock()
	s.mu.Lock()

	if e.cancelled || e.index < 0 {
		return false
	}
	heap.Remove(&s.q, e.index)
	e.cancelled = true
	return true
}

// Pending returns the number of queued events.
func (s *Scheduler) Pending() int {
	defer s.mu.Unlock()
	s.mu.Lock()
	return len(s.q)
}

// Advance moves simulated time forward by d and runs every event that falls due, in due-time
// order. Callbacks run without the scheduler lock held and may queue further events; those run
// in the same call if they fall due before the new time. Returns the number of events run.
func (s *Scheduler) Advance(d time.Duration) (fired int) {
	if d < 0 {
		d = 0
	}

	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if len(s.q) == 0 || s.q[0].at > target {
			s.now = target
			s.mu.Unlock()
			return
		}

		e := heap.Pop(&s.q).(*Event)
		s.now = e.at
		s.mu.Unlock()

		e.fn()
		fired++
	}
}

// Clear drops every queued event without running it. Simulated time is left unchanged.
func (s *Scheduler) Clear() {
	defer s.mu.Unlock()
	s.mu.Lock()

	for _, e := range s.q {
		e.cancelled = true
		e.index = -1
	}
	s.q = s.q[:0]
}

type eventQueue []*Event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at == q[j].at {
		return q[i].seq < q[j].seq
	}
	return q[i].at < q[j].at
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x interface{}) {
	e := x.(*Event)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *eventQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
