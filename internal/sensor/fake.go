package sensor

import (
	"errors"
	"sync"
)

// FakeSource is a test double that returns scripted measurements.
type FakeSource struct {
	mu sync.Mutex

	// Values are returned in order; the last one repeats once exhausted.
	Values []int

	// ReadError, if set, will be returned by ReadMeasurement.
	ReadError error

	index int
	reads int
}

// NewFakeSource creates a FakeSource with the given values.
func NewFakeSource(values ...int) *FakeSource {
	return &FakeSource{Values: values}
}

// ReadMeasurement returns the next scripted value.
func (f *FakeSource) ReadMeasurement() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Values) == 0 {
		return 0, errors.New("no values configured")
	}

	v := f.Values[f.index]
	if f.index < len(f.Values)-1 {
		f.index++
	}
	return v, nil
}

// Reads returns the number of ReadMeasurement calls.
func (f *FakeSource) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}
