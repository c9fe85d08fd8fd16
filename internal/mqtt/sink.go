package mqtt

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/sweeney/spi-handshake/internal/handshake"
)

// DefaultSinkQueue is the number of reports a Sink queues before dropping.
const DefaultSinkQueue = 64

// Sink adapts a Publisher to handshake.Observer. Observe only enqueues, so a slow
// broker never stalls a transfer loop; Run does the publishing.
type Sink struct {
	pub     Publisher
	queue   chan handshake.CycleReport
	logger  *slog.Logger
	dropped atomic.Uint64
}

// NewSink creates a Sink with a queue of the given size.
func NewSink(pub Publisher, size int, logger *slog.Logger) *Sink {
	if size < 1 {
		size = DefaultSinkQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		pub:    pub,
		queue:  make(chan handshake.CycleReport, size),
		logger: logger.With("component", "mqtt-sink"),
	}
}

// Observe implements handshake.Observer.
func (s *Sink) Observe(r handshake.CycleReport) {
	select {
	case s.queue <- r:
	default:
		if s.dropped.Add(1) == 1 {
			s.logger.Warn("publish queue full, dropping reports", "capacity", cap(s.queue))
		}
	}
}

// Dropped returns the number of reports discarded because the queue was full.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}

// Run publishes queued reports until ctx is done, then flushes what is left.
func (s *Sink) Run(ctx context.Context) error {
	for {
		select {
		case r := <-s.queue:
			s.publish(r)
		case <-ctx.Done():
			for {
				select {
				case r := <-s.queue:
					s.publish(r)
				default:
					return nil
				}
			}
		}
	}
}

func (s *Sink) publish(r handshake.CycleReport) {
	if err := s.pub.Publish(r); err != nil {
		s.logger.Warn("publish error", "role", r.Role, "cycle", r.Cycle, "err", err)
	}
}
