package handshake

import (
	"context"
	"time"
)

// Buffer sizes of the two roles and the length both sides agree to exchange.
const (
	InitiatorBufferSize = 128
	ResponderBufferSize = 129
	TransferSize        = 128

	// Sentinel fills the responder's inbound buffer before every cycle so that
	// bytes never written by a transfer are distinguishable from a zero payload.
	Sentinel byte = 0xA5
)

// Transaction is the per-role transfer record. It is owned by exactly one loop and
// reused on every cycle. Tx and Rx never share a backing array.
type Transaction struct {
	Tx         []byte
	Rx         []byte
	LengthBits int
}

// NewTransaction allocates distinct size-byte Tx and Rx buffers and sets the
// transfer length to lengthBytes*8 bits.
func NewTransaction(size, lengthBytes int) *Transaction {
	if lengthBytes > size {
		lengthBytes = size
	}
	return &Transaction{
		Tx:         make([]byte, size),
		Rx:         make([]byte, size),
		LengthBits: lengthBytes * 8,
	}
}

// Bytes returns the transfer length in whole bytes.
func (t *Transaction) Bytes() int {
	return t.LengthBits / 8
}

// FillRx overwrites the whole inbound buffer with b.
func (t *Transaction) FillRx(b byte) {
	for i := range t.Rx {
		t.Rx[i] = b
	}
}

// InitiatorEngine performs an initiator-side transfer. Initiate blocks until the
// physical exchange of t.LengthBits bits has completed, writing the received bits
// into t.Rx.
type InitiatorEngine interface {
	Initiate(ctx context.Context, t *Transaction) error
}

// ResponderEngine registers a responder-side transaction and blocks until an
// initiator has transferred against it. The engine must call hooks.OnArmed once the
// transaction is ready for pickup and hooks.OnCompleted once the hardware exchange is
// over, before Arm returns. A timeout <= 0 waits without bound.
type ResponderEngine interface {
	Arm(ctx context.Context, t *Transaction, hooks Hooks, timeout time.Duration) error
}
