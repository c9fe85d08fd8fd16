package gpio

import (
	"errors"
	"sync"
	"time"
)

// RingingInterval is the spacing of simulated spurious edges after a rise.
const RingingInterval = 5 * time.Microsecond

// Wire is an in-memory ready line: the output and input pins bridged together.
// Every low-to-high Set delivers a rising edge to the registered handlers,
// synchronously on the caller's goroutine.
type Wire struct {
	mu          sync.Mutex
	clock       func() time.Duration
	high        bool
	handlers    []EdgeHandler
	ringing     int
	transitions []bool
	closed      bool
}

// NewWire creates a low Wire stamping edges with clock. A nil clock measures time
// since creation.
func NewWire(clock func() time.Duration) *Wire {
	if clock == nil {
		start := time.Now()
		clock = func() time.Duration { return time.Since(start) }
	}
	return &Wire{clock: clock}
}

// OnRisingEdge registers a handler for rising edges.
func (w *Wire) OnRisingEdge(h EdgeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// SetRinging makes every rise deliver n extra edges RingingInterval apart,
// imitating a line that rings after each transition.
func (w *Wire) SetRinging(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ringing = n
}

// Set drives the line. Writing the current level is recorded but fires no edge.
func (w *Wire) Set(high bool) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.New("gpio: wire closed")
	}
	rising := high && !w.high
	w.high = high
	w.transitions = append(w.transitions, high)
	handlers := append([]EdgeHandler(nil), w.handlers...)
	ringing := w.ringing
	w.mu.Unlock()

	if !rising {
		return nil
	}
	ts := w.clock()
	for _, h := range handlers {
		h(ts)
		for i := 1; i <= ringing; i++ {
			h(ts + time.Duration(i)*RingingInterval)
		}
	}
	return nil
}

// High returns the current level.
func (w *Wire) High() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.high
}

// Transitions returns every level written, in order.
func (w *Wire) Transitions() []bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]bool(nil), w.transitions...)
}

// Close marks the wire closed; further writes fail.
func (w *Wire) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}
