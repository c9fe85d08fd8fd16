package handshake

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrWaitTimeout is returned by WaitAndClear when the gate was not signalled in time.
var ErrWaitTimeout = errors.New("handshake: timed out waiting for ready")

// Signaler is the non-blocking side of a ReadyGate.
type Signaler interface {
	Signal() bool
}

// ReadyGate is a binary gate handing "responder ready" from the edge handler to
// the initiator. At most one notification is buffered; further signals before the
// gate is consumed are coalesced.
type ReadyGate struct {
	slot      chan struct{}
	signals   atomic.Uint64
	coalesced atomic.Uint64
}

// NewReadyGate creates a gate. With preset the gate starts signalled, so an initiator
// that came up after the responder already raised the line does not wait for an edge
// it has missed.
func NewReadyGate(preset bool) *ReadyGate {
	g := &ReadyGate{slot: make(chan struct{}, 1)}
	if preset {
		g.slot <- struct{}{}
	}
	return g
}

// Signal sets the gate without blocking. It reports whether this call set the gate;
// false means a notification was already pending and this one was coalesced.
func (g *ReadyGate) Signal() bool {
	g.signals.Add(1)
	select {
	case g.slot <- struct{}{}:
		return true
	default:
		g.coalesced.Add(1)
		return false
	}
}

// WaitAndClear blocks until the gate is set, then clears it. A timeout <= 0 waits
// until ctx is done.
func (g *ReadyGate) WaitAndClear(ctx context.Context, timeout time.Duration) error {
	select {
	case <-g.slot:
		return nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-g.slot:
		return nil
	case <-expired:
		return ErrWaitTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports whether a notification is waiting to be consumed.
func (g *ReadyGate) Pending() bool {
	return len(g.slot) > 0
}

// Signals returns the number of Signal calls.
func (g *ReadyGate) Signals() uint64 {
	return g.signals.Load()
}

// Coalesced returns the number of signals absorbed by an already pending one.
func (g *ReadyGate) Coalesced() uint64 {
	return g.coalesced.Load()
}
