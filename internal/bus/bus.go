// Package bus provides Bus Transfer Engines for the handshake loops: an in-memory
// loopback pairing one initiator with one responder, and a hardware initiator on
// the Raspberry Pi SPI0 controller.
package bus

import (
	"errors"
	"fmt"

	"github.com/sweeney/spi-handshake/internal/handshake"
)

var (
	// ErrNotArmed is returned by an initiator transfer when no responder
	// transaction is waiting.
	ErrNotArmed = errors.New("bus: no responder transaction armed")

	// ErrArmTimeout is returned when an armed transaction was not picked up in time.
	ErrArmTimeout = errors.New("bus: armed transaction timed out")

	// ErrBusy is returned when a responder arms while a transaction is already armed.
	ErrBusy = errors.New("bus: responder transaction already armed")

	// ErrLength is returned when a transaction's length exceeds its buffers.
	ErrLength = errors.New("bus: transfer length exceeds buffer")
)

// checkLength verifies that LengthBits is a whole number of bytes and fits both
// buffers.
func checkLength(t *handshake.Transaction) error {
	if t.LengthBits <= 0 || t.LengthBits%8 != 0 {
		return fmt.Errorf("%w: %d bits", ErrLength, t.LengthBits)
	}
	if n := t.Bytes(); n > len(t.Tx) || n > len(t.Rx) {
		return fmt.Errorf("%w: %d bytes, tx %d rx %d", ErrLength, n, len(t.Tx), len(t.Rx))
	}
	return nil
}
