// Package status provides a thread-safe status tracker for the spi-handshake daemon.
// It observes cycle reports from both loops and is read by HTTP handlers and the
// MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/gammazero/deque"

	"github.com/sweeney/spi-handshake/internal/handshake"
)

// DefaultHistory is the number of recent cycles kept for display.
const DefaultHistory = 20

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Role          string
	PacingMs      int64
	DebounceUs    int64
	WaitTimeoutMs int64
	ArmTimeoutMs  int64
	HeartbeatMs   int64
	Broker        string
	HTTPAddr      string
}

// RoleStats aggregates the cycle reports of one loop.
type RoleStats struct {
	Cycles           int
	OK               int
	TransferFailures int
	WaitTimeouts     int
	SensorFailures   int
	Truncations      int
	LastSent         string
	LastReceived     string
	LastMeasurement  int
	LastError        string
	LastAt           time.Time
}

// DebounceStats mirrors the debouncer counters.
type DebounceStats struct {
	Accepted  uint64
	Discarded uint64
}

// GateStats mirrors the ready gate counters.
type GateStats struct {
	Pending   bool
	Signals   uint64
	Coalesced uint64
}

// LineStats mirrors the responder's ready line driver.
type LineStats struct {
	High   bool
	Raises uint64
	Lowers uint64
}

// BusStats mirrors the in-memory bus counters.
type BusStats struct {
	Transfers   uint64
	ArmTimeouts uint64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Initiator     RoleStats
	Responder     RoleStats
	Debounce      DebounceStats
	Gate          GateStats
	Line          LineStats
	Bus           *BusStats
	Recent        []handshake.CycleReport
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// DebounceCounter is implemented by *handshake.Debouncer.
type DebounceCounter interface {
	Accepted() uint64
	Discarded() uint64
}

// GateCounter is implemented by *handshake.ReadyGate.
type GateCounter interface {
	Pending() bool
	Signals() uint64
	Coalesced() uint64
}

// LineCounter is implemented by *handshake.LineDriver.
type LineCounter interface {
	High() bool
	Raises() uint64
	Lowers() uint64
}

// BusCounter is implemented by *bus.Loopback.
type BusCounter interface {
	Transfers() uint64
	Timeouts() uint64
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu       sync.RWMutex
	snap     Snapshot
	recent   deque.Deque[handshake.CycleReport]
	history  int
	debounce DebounceCounter
	gate     GateCounter
	line     LineCounter
	bus      BusCounter
}

// NewTracker creates a Tracker with the given start time and config, keeping the
// last history cycle reports.
func NewTracker(startTime time.Time, cfg Config, history int) *Tracker {
	if history < 1 {
		history = DefaultHistory
	}
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		history: history,
	}
}

// Attach wires live counters into snapshots. Any argument may be nil; a role
// without a responder has no line.
func (t *Tracker) Attach(d DebounceCounter, g GateCounter, l LineCounter) {
	t.mu.Lock()
	t.debounce, t.gate, t.line = d, g, l
	t.mu.Unlock()
}

// AttachBus wires the bus exchange counters into snapshots. Real SPI has none.
func (t *Tracker) AttachBus(b BusCounter) {
	t.mu.Lock()
	t.bus = b
	t.mu.Unlock()
}

// Observe implements handshake.Observer.
func (t *Tracker) Observe(r handshake.CycleReport) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := &t.snap.Initiator
	if r.Role == handshake.RoleResponder {
		stats = &t.snap.Responder
	}

	stats.LastAt = r.Started.Add(r.Duration)
	switch r.Outcome {
	case handshake.OutcomeOK:
		stats.Cycles++
		stats.OK++
		stats.LastSent = r.Sent
		stats.LastReceived = r.Received
		stats.LastMeasurement = r.Measurement
		stats.LastError = ""
	case handshake.OutcomeTransferFailed:
		stats.Cycles++
		stats.TransferFailures++
		stats.LastSent = r.Sent
	case handshake.OutcomeWaitTimeout:
		stats.WaitTimeouts++
	case handshake.OutcomeSensorFailed:
		stats.SensorFailures++
	}
	if r.Truncated {
		stats.Truncations++
	}
	if r.Err != nil {
		stats.LastError = r.Err.Error()
	}

	t.recent.PushBack(r)
	for t.recent.Len() > t.history {
		t.recent.PopFront()
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Recent = make([]handshake.CycleReport, t.recent.Len())
	for i := range s.Recent {
		s.Recent[i] = t.recent.At(i)
	}
	d, g, l, b := t.debounce, t.gate, t.line, t.bus
	t.mu.RUnlock()

	if d != nil {
		s.Debounce = DebounceStats{Accepted: d.Accepted(), Discarded: d.Discarded()}
	}
	if g != nil {
		s.Gate = GateStats{Pending: g.Pending(), Signals: g.Signals(), Coalesced: g.Coalesced()}
	}
	if l != nil {
		s.Line = LineStats{High: l.High(), Raises: l.Raises(), Lowers: l.Lowers()}
	}
	if b != nil {
		s.Bus = &BusStats{Transfers: b.Transfers(), ArmTimeouts: b.Timeouts()}
	}
	s.Now = time.Now()
	return s
}
