package bridge

import "sync"

// Sink is the presentation side of the bridge.
type Sink interface {
	// RegisterChanged is called with the new value of a watched address when a sample differs from
	// the previous one, and for the first sample of every watch.
	RegisterChanged(addr uint32, value uint32)
	// ByteTransmitted is called once per byte the UART transmits.
	ByteTransmitted(b byte)
}

// SinkFuncs adapts a pair of functions to Sink. Nil functions are skipped.
type SinkFuncs struct {
	OnRegisterChanged func(addr uint32, value uint32)
	OnByteTransmitted func(b byte)
}

func (s SinkFuncs) RegisterChanged(addr uint32, value uint32) {
	if s.OnRegisterChanged != nil {
		s.OnRegisterChanged(addr, value)
	}
}

func (s SinkFuncs) ByteTransmitted(b byte) {
	if s.OnByteTransmitted != nil {
		s.OnByteTransmitted(b)
	}
}

// Hub fans notifications out to every subscribed sink.
type Hub struct {
	mu    sync.RWMutex
	sinks map[Sink]struct{}
}

func NewHub() *Hub {
	return &Hub{sinks: make(map[Sink]struct{})}
}

// Subscribe adds s. Sinks must be comparable; pass pointers for struct sinks.
func (h *Hub) Subscribe(s Sink) {
	defer h.mu.Unlock()
	h.mu.Lock()
	h.sinks[s] = struct{}{}
}

func (h *Hub) Unsubscribe(s Sink) {
	defer h.mu.Unlock()
	h.mu.Lock()
	delete(h.sinks, s)
}

func (h *Hub) Len() int {
	defer h.mu.RUnlock()
	h.mu.RLock()
	return len(h.sinks)
}

func (h *Hub) snapshot() []Sink {
	defer h.mu.RUnlock()
	h.mu.RLock()
	sinks := make([]Sink, 0, len(h.sinks))
	for s := range h.sinks {
		sinks = append(sinks, s)
	}
	return sinks
}

func (h *Hub) RegisterChanged(addr uint32, value uint32) {
	for _, s := range h.snapshot() {
		s.RegisterChanged(addr, value)
	}
}

func (h *Hub) ByteTransmitted(b byte) {
	for _, s := range h.snapshot() {
		s.ByteTransmitted(b)
	}
}
