package mqtt

import "github.com/gammazero/deque"

// DefaultBufferSize is the number of messages held while the broker is unreachable.
const DefaultBufferSize = 256

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// offlineBuffer is a bounded FIFO that stores messages while disconnected. When
// full the oldest message is dropped.
// Not safe for concurrent use; caller must synchronize.
type offlineBuffer struct {
	q        deque.Deque[bufferedMsg]
	capacity int
	dropped  int // since last drain
}

func newOfflineBuffer(capacity int) *offlineBuffer {
	if capacity < 1 {
		capacity = DefaultBufferSize
	}
	return &offlineBuffer{capacity: capacity}
}

// push appends msg and reports whether the oldest message was dropped to make room.
func (b *offlineBuffer) push(msg bufferedMsg) bool {
	overflow := false
	if b.q.Len() == b.capacity {
		b.q.PopFront()
		b.dropped++
		overflow = true
	}
	b.q.PushBack(msg)
	return overflow
}

// drainAll removes and returns every buffered message, oldest first, along with
// the number dropped since the previous drain.
func (b *offlineBuffer) drainAll() ([]bufferedMsg, int) {
	dropped := b.dropped
	b.dropped = 0
	if b.q.Len() == 0 {
		return nil, dropped
	}

	result := make([]bufferedMsg, 0, b.q.Len())
	for b.q.Len() > 0 {
		result = append(result, b.q.PopFront())
	}
	return result, dropped
}

func (b *offlineBuffer) len() int {
	return b.q.Len()
}
