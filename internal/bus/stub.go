//go:build !linux

package bus

import (
	"context"
	"errors"

	"github.com/sweeney/spi-handshake/internal/handshake"
)

// RPIInitiator is not available on non-Linux platforms.
type RPIInitiator struct{}

// NewRPIInitiator returns an error on non-Linux platforms.
func NewRPIInitiator(speedHz int, chipSelect uint8) (*RPIInitiator, error) {
	return nil, errors.New("bus: spi not supported on this platform (requires Linux)")
}

// Initiate is not implemented on non-Linux platforms.
func (r *RPIInitiator) Initiate(ctx context.Context, t *handshake.Transaction) error {
	return errors.New("bus: spi not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RPIInitiator) Close() error {
	return nil
}
