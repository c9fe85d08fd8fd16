package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/spi-handshake/internal/handshake"
)

// IdleByte is clocked in for bits the responder does not drive.
const IdleByte byte = 0xFF

// Loopback connects one responder and one initiator in memory, standing in for
// two bus controllers wired to each other. Arm registers the responder's
// transaction and blocks; Initiate exchanges against it full-duplex and releases
// the responder.
type Loopback struct {
	mu    sync.Mutex
	armed *pending

	transfers atomic.Uint64
	timeouts  atomic.Uint64
}

type pending struct {
	t    *handshake.Transaction
	done chan struct{}
}

// NewLoopback creates an idle loopback bus.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Arm implements handshake.ResponderEngine.
func (l *Loopback) Arm(ctx context.Context, t *handshake.Transaction, hooks handshake.Hooks, timeout time.Duration) error {
	if err := checkLength(t); err != nil {
		return err
	}

	p := &pending{t: t, done: make(chan struct{})}
	l.mu.Lock()
	if l.armed != nil {
		l.mu.Unlock()
		return ErrBusy
	}
	l.armed = p
	l.mu.Unlock()

	hooks.OnArmed(t)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var err error
	select {
	case <-p.done:
		hooks.OnCompleted(t)
		return nil
	case <-expired:
		err = ErrArmTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}

	l.mu.Lock()
	withdrawn := l.armed == p
	if withdrawn {
		l.armed = nil
	}
	l.mu.Unlock()

	if !withdrawn {
		// The initiator claimed the transaction as we gave up; the exchange is
		// already under way.
		<-p.done
		hooks.OnCompleted(t)
		return nil
	}
	if err == ErrArmTimeout {
		l.timeouts.Add(1)
	}
	hooks.OnCompleted(t)
	return err
}

// Initiate implements handshake.InitiatorEngine.
func (l *Loopback) Initiate(ctx context.Context, t *handshake.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkLength(t); err != nil {
		return err
	}

	l.mu.Lock()
	p := l.armed
	l.armed = nil
	l.mu.Unlock()

	if p == nil {
		return ErrNotArmed
	}

	n := min(t.Bytes(), p.t.Bytes())
	copy(t.Rx[:n], p.t.Tx[:n])
	copy(p.t.Rx[:n], t.Tx[:n])
	for i := n; i < t.Bytes(); i++ {
		t.Rx[i] = IdleByte
	}

	l.transfers.Add(1)
	close(p.done)
	return nil
}

// Armed reports whether a responder transaction is waiting for the initiator.
func (l *Loopback) Armed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.armed != nil
}

// Transfers returns the number of completed exchanges.
func (l *Loopback) Transfers() uint64 {
	return l.transfers.Load()
}

// Timeouts returns the number of armed transactions withdrawn on timeout.
func (l *Loopback) Timeouts() uint64 {
	return l.timeouts.Load()
}
