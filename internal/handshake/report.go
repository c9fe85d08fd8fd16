package handshake

import (
	"context"
	"time"
)

// Role identifies which side of the bus a loop plays.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// Outcome classifies a single loop cycle.
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeTransferFailed Outcome = "transfer_failed"
	OutcomeWaitTimeout    Outcome = "wait_timeout"
	OutcomeSensorFailed   Outcome = "sensor_failed"
)

// CycleReport describes one cycle of either loop.
type CycleReport struct {
	Role        Role
	Cycle       int
	Outcome     Outcome
	Sent        string
	Received    string
	Measurement int // responder only
	Truncated   bool
	Err         error
	Started     time.Time
	Duration    time.Duration
}

// Observer receives a report after every cycle. Implementations must not block
// for long; they run on the loop's goroutine.
type Observer interface {
	Observe(r CycleReport)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(r CycleReport)

func (f ObserverFunc) Observe(r CycleReport) { f(r) }

// Observers fans a report out to every non-nil observer in order.
type Observers []Observer

func (obs Observers) Observe(r CycleReport) {
	for _, o := range obs {
		if o != nil {
			o.Observe(r)
		}
	}
}

// sleep suspends for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
