package bridge

import (
	"fmt"
	"github.com/aybabtme/uniplot/histogram"
	"io"
	"sync"
	"time"
)

// Stats keeps the latency of the most recent sample passes.
type Stats struct {
	mu      sync.Mutex
	window  []float64
	next    int
	full    bool
	passes  uint64
	changes uint64
}

func NewStats(window int) *Stats {
	if window <= 0 {
		window = 1024
	}
	return &Stats{window: make([]float64, window)}
}

// Record adds one sample pass that took d and found changes differences.
func (s *Stats) Record(d time.Duration, changes int) {
	defer s.mu.Unlock()
	s.mu.Lock()

	s.window[s.next] = float64(d) / float64(time.Microsecond)
	s.next++
	if s.next == len(s.window) {
		s.next = 0
		s.full = true
	}
	s.passes++
	s.changes += uint64(changes)
}

func (s *Stats) Passes() uint64 {
	defer s.mu.Unlock()
	s.mu.Lock()
	return s.passes
}

func (s *Stats) Changes() uint64 {
	defer s.mu.Unlock()
	s.mu.Lock()
	return s.changes
}

// Latencies returns the recorded pass latencies in microseconds, oldest first.
func (s *Stats) Latencies() []float64 {
	defer s.mu.Unlock()
	s.mu.Lock()

	if !s.full {
		return append([]float64(nil), s.window[:s.next]...)
	}
	out := make([]float64, 0, len(s.window))
	out = append(out, s.window[s.next:]...)
	return append(out, s.window[:s.next]...)
}

// WriteHistogram prints a text histogram of pass latencies to w.
func (s *Stats) WriteHistogram(w io.Writer, bins int) error {
	data := s.Latencies()
	if _, err := fmt.Fprintf(w, "bridge: %d passes, %d changes; sample latency (us) over the last %d passes:\n", s.Passes(), s.Changes(), len(data)); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return histogram.Fprint(w, histogram.Hist(bins, data), histogram.Linear(40))
}
