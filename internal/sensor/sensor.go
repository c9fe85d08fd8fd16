// Package sensor supplies the responder's per-cycle measurement.
package sensor

import (
	"math/rand"
	"sync"
)

// Source reads one measurement per call.
type Source interface {
	ReadMeasurement() (int, error)
}

// RandomSource is a placeholder source producing values in [Min, Max].
type RandomSource struct {
	mu  sync.Mutex
	rng *rand.Rand
	Min int
	Max int
}

// NewRandomSource creates a RandomSource over [1, 100] seeded with seed.
func NewRandomSource(seed int64) *RandomSource {
	return &RandomSource{rng: rand.New(rand.NewSource(seed)), Min: 1, Max: 100}
}

// ReadMeasurement returns the next pseudo-random value.
func (s *RandomSource) ReadMeasurement() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Max <= s.Min {
		return s.Min, nil
	}
	return s.Min + s.rng.Intn(s.Max-s.Min+1), nil
}
