//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewRealOutput returns an error on non-Linux platforms.
func NewRealOutput(chipName string, pin int) (*RealOutput, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (o *RealOutput) Set(high bool) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (o *RealOutput) Close() error {
	return nil
}

// RealEdgeWatcher is not available on non-Linux platforms.
type RealEdgeWatcher struct{}

// NewRealEdgeWatcher returns an error on non-Linux platforms.
func NewRealEdgeWatcher(chipName string, pin int, handler EdgeHandler) (*RealEdgeWatcher, error) {
	return nil, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (w *RealEdgeWatcher) Close() error {
	return nil
}
