package handshake

import (
	"log/slog"
	"sync"
)

// Hooks are the lifecycle callbacks a ResponderEngine invokes around a responder
// transaction.
type Hooks interface {
	// OnArmed is called once the transaction is registered and ready for pickup,
	// before the engine blocks waiting for the initiator.
	OnArmed(t *Transaction)
	// OnCompleted is called once the hardware exchange is over, before Arm returns.
	OnCompleted(t *Transaction)
}

// HookFuncs adapts a pair of functions to Hooks. Nil functions are skipped.
type HookFuncs struct {
	Armed     func(t *Transaction)
	Completed func(t *Transaction)
}

func (h HookFuncs) OnArmed(t *Transaction) {
	if h.Armed != nil {
		h.Armed(t)
	}
}

func (h HookFuncs) OnCompleted(t *Transaction) {
	if h.Completed != nil {
		h.Completed(t)
	}
}

// Line is a digital output.
type Line interface {
	Set(high bool) error
}

// LineDriver drives the ready line from the responder hooks: high while a
// transaction is armed, low otherwise.
type LineDriver struct {
	line   Line
	logger *slog.Logger

	mu     sync.Mutex
	high   bool
	raises uint64
	lowers uint64
}

// NewLineDriver creates a LineDriver for line. A nil logger uses slog.Default().
func NewLineDriver(line Line, logger *slog.Logger) *LineDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LineDriver{line: line, logger: logger.With("component", "line-driver")}
}

// OnArmed raises the ready line.
func (d *LineDriver) OnArmed(t *Transaction) {
	d.set(true)
}

// OnCompleted lowers the ready line.
func (d *LineDriver) OnCompleted(t *Transaction) {
	d.set(false)
}

func (d *LineDriver) set(high bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.high == high {
		d.logger.Warn("ready line already in requested state", "high", high)
		return
	}
	if err := d.line.Set(high); err != nil {
		d.logger.Error("ready line write failed", "high", high, "err", err)
		return
	}
	d.high = high
	if high {
		d.raises++
	} else {
		d.lowers++
	}
}

// High reports the logical level last written to the line.
func (d *LineDriver) High() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.high
}

// Raises returns the number of low-to-high writes.
func (d *LineDriver) Raises() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.raises
}

// Lowers returns the number of high-to-low writes.
func (d *LineDriver) Lowers() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lowers
}
