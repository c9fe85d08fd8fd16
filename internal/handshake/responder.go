package handshake

import (
	"context"
	"log/slog"
	"time"
)

// MeasurementSource supplies the value the responder sends each cycle.
type MeasurementSource interface {
	ReadMeasurement() (int, error)
}

// ResponderOptions configures a Responder. Zero values select the defaults.
type ResponderOptions struct {
	// Pacing is the pause after every cycle.
	Pacing time.Duration
	// ArmTimeout bounds how long an armed transaction waits for the initiator;
	// <= 0 waits without bound.
	ArmTimeout time.Duration
	// Format renders the measurement into the outbound buffer.
	Format   string
	Logger   *slog.Logger
	Observer Observer
	Now      func() time.Time
}

// Responder is the responder transfer loop: measure, arm, wait for the initiator,
// pace.
type Responder struct {
	engine ResponderEngine
	source MeasurementSource
	hooks  Hooks
	t      *Transaction
	opts   ResponderOptions
	logger *slog.Logger
	count  int
}

// NewResponder creates a responder loop with a 129-byte transaction exchanging 128
// bytes. hooks are handed to the engine on every Arm; typically a *LineDriver.
func NewResponder(engine ResponderEngine, source MeasurementSource, hooks Hooks, opts ResponderOptions) *Responder {
	if opts.Format == "" {
		opts.Format = DefaultResponderFormat
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if hooks == nil {
		hooks = HookFuncs{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		engine: engine,
		source: source,
		hooks:  hooks,
		t:      NewTransaction(ResponderBufferSize, TransferSize),
		opts:   opts,
		logger: logger.With("role", RoleResponder),
	}
}

// Transaction exposes the loop's transfer record.
func (r *Responder) Transaction() *Transaction {
	return r.t
}

// Count returns the number of armed transactions so far.
func (r *Responder) Count() int {
	return r.count
}

// Cycle runs one responder cycle. Per-cycle failures are reported in the
// CycleReport; the error is non-nil only when ctx ended.
func (r *Responder) Cycle(ctx context.Context) (CycleReport, error) {
	rep := CycleReport{Role: RoleResponder, Cycle: r.count, Started: r.opts.Now()}

	m, err := r.source.ReadMeasurement()
	if err != nil {
		rep.Outcome = OutcomeSensorFailed
		rep.Err = err
		rep.Duration = r.opts.Now().Sub(rep.Started)
		r.logger.Warn("measurement unavailable", "err", err)
		r.observe(rep)
		return rep, nil
	}
	rep.Measurement = m

	r.t.FillRx(Sentinel)
	n, truncated := FormatPayload(r.t.Tx, r.opts.Format, m)
	if truncated {
		r.logger.Warn("payload truncated", "measurement", m, "capacity", len(r.t.Tx))
	}
	rep.Sent = string(r.t.Tx[:n])
	rep.Truncated = truncated

	err = r.engine.Arm(ctx, r.t, r.hooks, r.opts.ArmTimeout)
	r.count++
	if err != nil {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Outcome = OutcomeTransferFailed
		rep.Err = err
		r.logger.Warn("transfer failed", "cycle", rep.Cycle, "err", err)
	} else {
		rep.Outcome = OutcomeOK
		rep.Received = CString(r.t.Rx[:r.t.Bytes()])
		r.logger.Info("measurement sent", "cycle", rep.Cycle, "measurement", m)
	}
	rep.Duration = r.opts.Now().Sub(rep.Started)
	r.observe(rep)
	return rep, nil
}

// Run repeats Cycle, pacing after each one, until ctx is done.
func (r *Responder) Run(ctx context.Context) error {
	r.logger.Info("responder loop started", "pacing", r.opts.Pacing, "arm_timeout", r.opts.ArmTimeout)
	defer r.logger.Info("responder loop stopped", "cycles", r.count)

	for {
		if _, err := r.Cycle(ctx); err != nil {
			return nil
		}
		if err := sleep(ctx, r.opts.Pacing); err != nil {
			return nil
		}
	}
}

func (r *Responder) observe(rep CycleReport) {
	if r.opts.Observer != nil {
		r.opts.Observer.Observe(rep)
	}
}
