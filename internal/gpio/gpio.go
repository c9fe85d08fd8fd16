// Package gpio provides the ready line: a digital output raised by the responder
// and a rising-edge input watched by the initiator.
// The real implementation uses the Linux GPIO character device.
// The Wire fake bridges an output to edge handlers in memory for tests and
// simulation.
package gpio

import "time"

// Output drives a single digital line.
type Output interface {
	// Set drives the line high or low.
	Set(high bool) error

	// Close releases the line.
	Close() error
}

// EdgeHandler receives the timestamp of a rising edge. Timestamps come from a
// monotonic clock and are only comparable with each other.
type EdgeHandler func(ts time.Duration)

// Default line assignments (BCM numbering) and chip.
const (
	DefaultChip        = "gpiochip0"
	DefaultPinReadyOut = 24 // driven by the responder
	DefaultPinReadyIn  = 25 // watched by the initiator
)

// Consumer is the label attached to requested lines.
const Consumer = "spi-handshake"
