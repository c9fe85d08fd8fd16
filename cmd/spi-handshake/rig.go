package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sweeney/spi-handshake/internal/bus"
	"github.com/sweeney/spi-handshake/internal/config"
	"github.com/sweeney/spi-handshake/internal/gpio"
	"github.com/sweeney/spi-handshake/internal/handshake"
	"github.com/sweeney/spi-handshake/internal/sensor"
	"github.com/sweeney/spi-handshake/internal/status"
)

// rig is the wired-up hardware (or simulation) for one role: bus engines, the
// ready line from responder to initiator, and the loops on top of them.
type rig struct {
	initiatorEngine handshake.InitiatorEngine
	responderEngine handshake.ResponderEngine // nil in the initiator role
	source          handshake.MeasurementSource
	loopback        *bus.Loopback // nil unless the role is both

	gate      *handshake.ReadyGate
	debouncer *handshake.Debouncer
	line      *handshake.LineDriver // nil in the initiator role

	initiator *handshake.Initiator
	responder *handshake.Responder

	closers []io.Closer
}

// newRig performs bring-up for cfg.Role. The gate is created signalled so the
// first initiator wait does not depend on an edge that may predate the watcher.
func newRig(cfg config.Config, logger *slog.Logger) (_ *rig, err error) {
	r := &rig{gate: handshake.NewReadyGate(true)}
	defer func() {
		if err != nil {
			r.Close()
		}
	}()
	r.debouncer = handshake.NewDebouncer(cfg.Debounce, r.gate)

	switch cfg.Role {
	case config.RoleBoth:
		lb := bus.NewLoopback()
		r.loopback = lb
		r.initiatorEngine, r.responderEngine = lb, lb
		r.source = sensor.NewRandomSource(time.Now().UnixNano())

		var out handshake.Line
		if cfg.GPIO.Hardware {
			o, err := gpio.NewRealOutput(cfg.GPIO.Chip, cfg.GPIO.ReadyOut)
			if err != nil {
				return nil, fmt.Errorf("init ready output: %w", err)
			}
			r.closers = append(r.closers, o)
			if err := r.watch(cfg); err != nil {
				return nil, err
			}
			out = o
		} else {
			w := gpio.NewWire(r.debouncer.Now)
			w.SetRinging(cfg.Sim.Ringing)
			w.OnRisingEdge(func(ts time.Duration) { r.debouncer.Edge(ts) })
			r.closers = append(r.closers, w)
			out = w
		}
		// Line starts low before any transaction is armed.
		if err := out.Set(false); err != nil {
			return nil, fmt.Errorf("init ready output: %w", err)
		}
		r.line = handshake.NewLineDriver(out, logger)

	case config.RoleInitiator:
		spi, err := bus.NewRPIInitiator(cfg.SPI.Speed, cfg.SPI.ChipSelect)
		if err != nil {
			return nil, fmt.Errorf("init spi: %w", err)
		}
		r.closers = append(r.closers, spi)
		r.initiatorEngine = spi
		if err := r.watch(cfg); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown role %q", cfg.Role)
	}
	return r, nil
}

// watch feeds rising edges on the hardware ready input into the debouncer.
func (r *rig) watch(cfg config.Config) error {
	w, err := gpio.NewRealEdgeWatcher(cfg.GPIO.Chip, cfg.GPIO.ReadyIn, func(ts time.Duration) {
		r.debouncer.Edge(ts)
	})
	if err != nil {
		return fmt.Errorf("init ready input: %w", err)
	}
	r.closers = append(r.closers, w)
	return nil
}

// buildLoops creates the loops reporting to obs.
func (r *rig) buildLoops(cfg config.Config, obs handshake.Observer, logger *slog.Logger) {
	r.initiator = handshake.NewInitiator(r.initiatorEngine, r.gate, handshake.InitiatorOptions{
		Pacing:      cfg.Pacing,
		WaitTimeout: cfg.WaitTimeout,
		Format:      cfg.InitiatorFormat,
		Logger:      logger,
		Observer:    obs,
	})
	if r.responderEngine == nil {
		return
	}
	r.responder = handshake.NewResponder(r.responderEngine, r.source, r.line, handshake.ResponderOptions{
		Pacing:     cfg.Pacing,
		ArmTimeout: cfg.ArmTimeout,
		Format:     cfg.ResponderFormat,
		Logger:     logger,
		Observer:   obs,
	})
}

// lineCounter returns the line driver as a status.LineCounter, or nil without one.
func (r *rig) lineCounter() status.LineCounter {
	if r.line == nil {
		return nil
	}
	return r.line
}

// busCounter returns the loopback bus as a status.BusCounter, or nil on real SPI.
func (r *rig) busCounter() status.BusCounter {
	if r.loopback == nil {
		return nil
	}
	return r.loopback
}

// Close releases hardware in reverse order of acquisition.
func (r *rig) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
