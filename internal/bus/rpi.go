//go:build linux

package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/sweeney/spi-handshake/internal/handshake"
)

// RPIInitiator drives transfers as bus initiator on the Raspberry Pi SPI0
// controller, mode 0.
type RPIInitiator struct {
	mu sync.Mutex
}

// NewRPIInitiator opens the GPIO memory map and SPI0 at speedHz, selecting chip
// select line chipSelect.
func NewRPIInitiator(speedHz int, chipSelect uint8) (*RPIInitiator, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open rpio: %w", err)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		rpio.Close()
		return nil, fmt.Errorf("begin spi0: %w", err)
	}
	rpio.SpiSpeed(speedHz)
	rpio.SpiChipSelect(chipSelect)
	rpio.SpiMode(0, 0)
	return &RPIInitiator{}, nil
}

// Initiate implements handshake.InitiatorEngine. The exchange is done in place in
// t.Rx, so t.Tx is never written.
func (r *RPIInitiator) Initiate(ctx context.Context, t *handshake.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkLength(t); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := t.Bytes()
	copy(t.Rx[:n], t.Tx[:n])
	rpio.SpiExchange(t.Rx[:n])
	return nil
}

// Close releases SPI0 and the GPIO memory map.
func (r *RPIInitiator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rpio.SpiEnd(rpio.Spi0)
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("close rpio: %w", err)
	}
	return nil
}
