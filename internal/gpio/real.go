//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealOutput drives the ready line on actual hardware.
type RealOutput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealOutput requests pin on chip as an output, initially low.
func NewRealOutput(chipName string, pin int) (*RealOutput, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request ready output pin %d: %w", pin, err)
	}

	return &RealOutput{chip: chip, line: line}, nil
}

// Set drives the line high or low.
func (o *RealOutput) Set(high bool) error {
	v := 0
	if high {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set ready line: %w", err)
	}
	return nil
}

// Close returns the pin to input with pull-down (the Pi boot default) before
// releasing it.
func (o *RealOutput) Close() error {
	return closeLine(o.chip, o.line, "ready output")
}

// RealEdgeWatcher delivers rising edges of the ready input to a handler. The
// kernel stamps each edge; the handler runs on gpiocdev's event goroutine and must
// not block.
type RealEdgeWatcher struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealEdgeWatcher requests pin on chip as an input with pull-up and rising-edge
// detection, passing each edge's timestamp to handler.
func NewRealEdgeWatcher(chipName string, pin int, handler EdgeHandler) (*RealEdgeWatcher, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			if evt.Type == gpiocdev.LineEventRisingEdge {
				handler(evt.Timestamp)
			}
		}),
	)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request ready input pin %d: %w", pin, err)
	}

	return &RealEdgeWatcher{chip: chip, line: line}, nil
}

// Close stops edge detection and releases the pin.
func (w *RealEdgeWatcher) Close() error {
	return closeLine(w.chip, w.line, "ready input")
}

func closeLine(chip *gpiocdev.Chip, line *gpiocdev.Line, name string) error {
	var errs []error

	if line != nil {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	if chip != nil {
		if err := chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
