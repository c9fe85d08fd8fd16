package handshake

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Waiter is the blocking side of a ReadyGate.
type Waiter interface {
	WaitAndClear(ctx context.Context, timeout time.Duration) error
}

// InitiatorOptions configures an Initiator. Zero values select the defaults.
type InitiatorOptions struct {
	// Pacing is the pause after every transfer attempt.
	Pacing time.Duration
	// WaitTimeout bounds each wait for the ready gate; <= 0 waits without bound.
	WaitTimeout time.Duration
	// Format renders the cycle counter into the outbound buffer.
	Format   string
	Logger   *slog.Logger
	Observer Observer
	Now      func() time.Time
}

// Initiator is the initiator transfer loop: wait for ready, transfer, pace.
type Initiator struct {
	engine InitiatorEngine
	gate   Waiter
	t      *Transaction
	opts   InitiatorOptions
	logger *slog.Logger
	count  int
}

// NewInitiator creates an initiator loop with a 128-byte transaction.
func NewInitiator(engine InitiatorEngine, gate Waiter, opts InitiatorOptions) *Initiator {
	if opts.Format == "" {
		opts.Format = DefaultInitiatorFormat
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Initiator{
		engine: engine,
		gate:   gate,
		t:      NewTransaction(InitiatorBufferSize, InitiatorBufferSize),
		opts:   opts,
		logger: logger.With("role", RoleInitiator),
	}
}

// Transaction exposes the loop's transfer record.
func (in *Initiator) Transaction() *Transaction {
	return in.t
}

// Count returns the number of transfer attempts so far, which is also the counter
// value the next payload carries.
func (in *Initiator) Count() int {
	return in.count
}

// Cycle waits for the responder to be ready and performs one transfer. Per-cycle
// failures are reported in the CycleReport; the error is non-nil only when ctx
// ended.
func (in *Initiator) Cycle(ctx context.Context) (CycleReport, error) {
	rep := CycleReport{Role: RoleInitiator, Cycle: in.count, Started: in.opts.Now()}

	if err := in.gate.WaitAndClear(ctx, in.opts.WaitTimeout); err != nil {
		if !errors.Is(err, ErrWaitTimeout) {
			return rep, err
		}
		rep.Outcome = OutcomeWaitTimeout
		rep.Err = err
		rep.Duration = in.opts.Now().Sub(rep.Started)
		in.logger.Warn("no ready signal from responder", "timeout", in.opts.WaitTimeout)
		in.observe(rep)
		return rep, nil
	}

	n, truncated := FormatPayload(in.t.Tx, in.opts.Format, in.count)
	if truncated {
		in.logger.Warn("payload truncated", "cycle", in.count, "capacity", len(in.t.Tx))
	}
	rep.Sent = string(in.t.Tx[:n])
	rep.Truncated = truncated

	err := in.engine.Initiate(ctx, in.t)
	in.count++
	if err != nil {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Outcome = OutcomeTransferFailed
		rep.Err = err
		in.logger.Warn("transfer failed", "cycle", rep.Cycle, "err", err)
	} else {
		rep.Outcome = OutcomeOK
		rep.Received = CString(in.t.Rx[:in.t.Bytes()])
		in.logger.Info("transfer complete", "cycle", rep.Cycle, "sent", rep.Sent, "received", rep.Received)
	}
	rep.Duration = in.opts.Now().Sub(rep.Started)
	in.observe(rep)
	return rep, nil
}

// Run repeats Cycle until ctx is done. A wait timeout re-enters the wait
// immediately; every transfer attempt is followed by the pacing delay.
func (in *Initiator) Run(ctx context.Context) error {
	in.logger.Info("initiator loop started", "pacing", in.opts.Pacing, "wait_timeout", in.opts.WaitTimeout)
	defer in.logger.Info("initiator loop stopped", "cycles", in.count)

	for {
		rep, err := in.Cycle(ctx)
		if err != nil {
			return nil
		}
		if rep.Outcome == OutcomeWaitTimeout {
			continue
		}
		if err := sleep(ctx, in.opts.Pacing); err != nil {
			return nil
		}
	}
}

func (in *Initiator) observe(rep CycleReport) {
	if in.opts.Observer != nil {
		in.opts.Observer.Observe(rep)
	}
}
