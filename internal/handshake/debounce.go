package handshake

import (
	"math"
	"sync/atomic"
	"time"
)

// DefaultDebounce is the minimum spacing between two accepted ready edges.
const DefaultDebounce = time.Millisecond

const noEdge = math.MinInt64

// Debouncer filters ringing on the ready line. An edge is accepted only if at least
// the threshold has passed since the previously accepted edge; accepted edges set
// the gate. Edge never blocks and may be called from an event handler goroutine.
type Debouncer struct {
	threshold time.Duration
	gate      Signaler
	clock     func() time.Duration

	last      atomic.Int64
	accepted  atomic.Uint64
	discarded atomic.Uint64
}

// NewDebouncer creates a Debouncer that signals gate on accepted edges.
func NewDebouncer(threshold time.Duration, gate Signaler) *Debouncer {
	start := time.Now()
	d := &Debouncer{
		threshold: threshold,
		gate:      gate,
		clock:     func() time.Duration { return time.Since(start) },
	}
	d.last.Store(noEdge)
	return d
}

// Edge processes a rising edge observed at ts, a monotonic timestamp. It reports
// whether the edge was accepted.
func (d *Debouncer) Edge(ts time.Duration) bool {
	for {
		last := d.last.Load()
		if last != noEdge && ts-time.Duration(last) < d.threshold {
			d.discarded.Add(1)
			return false
		}
		if d.last.CompareAndSwap(last, int64(ts)) {
			break
		}
	}
	d.accepted.Add(1)
	if d.gate != nil {
		d.gate.Signal()
	}
	return true
}

// Now returns the debouncer's monotonic clock reading.
func (d *Debouncer) Now() time.Duration {
	return d.clock()
}

// Threshold returns the configured debounce window.
func (d *Debouncer) Threshold() time.Duration {
	return d.threshold
}

// Accepted returns the number of edges that set the gate.
func (d *Debouncer) Accepted() uint64 {
	return d.accepted.Load()
}

// Discarded returns the number of edges dropped inside the debounce window.
func (d *Debouncer) Discarded() uint64 {
	return d.discarded.Load()
}
