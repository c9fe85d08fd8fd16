package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/spi-handshake/internal/handshake"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Initiator     RoleJSON     `json:"initiator"`
	Responder     RoleJSON     `json:"responder"`
	Debounce      DebounceJSON `json:"debounce"`
	Gate          GateJSON     `json:"ready_gate"`
	Line          LineJSON     `json:"ready_line"`
	Bus           *BusJSON     `json:"bus,omitempty"`
	Recent        []CycleJSON  `json:"recent,omitempty"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// RoleJSON is the JSON representation of RoleStats.
type RoleJSON struct {
	Cycles           int    `json:"cycles"`
	OK               int    `json:"ok"`
	TransferFailures int    `json:"transfer_failures"`
	WaitTimeouts     int    `json:"wait_timeouts"`
	SensorFailures   int    `json:"sensor_failures"`
	Truncations      int    `json:"truncations"`
	LastSent         string `json:"last_sent,omitempty"`
	LastReceived     string `json:"last_received,omitempty"`
	LastMeasurement  int    `json:"last_measurement,omitempty"`
	LastError        string `json:"last_error,omitempty"`
	LastAt           string `json:"last_at,omitempty"`
}

// DebounceJSON is the JSON representation of DebounceStats.
type DebounceJSON struct {
	Accepted  uint64 `json:"accepted"`
	Discarded uint64 `json:"discarded"`
}

// GateJSON is the JSON representation of GateStats.
type GateJSON struct {
	Pending   bool   `json:"pending"`
	Signals   uint64 `json:"signals"`
	Coalesced uint64 `json:"coalesced"`
}

// LineJSON is the JSON representation of LineStats.
type LineJSON struct {
	High   bool   `json:"high"`
	Raises uint64 `json:"raises"`
	Lowers uint64 `json:"lowers"`
}

// BusJSON is the JSON representation of BusStats.
type BusJSON struct {
	Transfers   uint64 `json:"transfers"`
	ArmTimeouts uint64 `json:"arm_timeouts"`
}

// CycleJSON is the JSON representation of one cycle report.
type CycleJSON struct {
	Role        string `json:"role"`
	Cycle       int    `json:"cycle"`
	Outcome     string `json:"outcome"`
	Sent        string `json:"sent,omitempty"`
	Received    string `json:"received,omitempty"`
	Measurement int    `json:"measurement,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	Error       string `json:"error,omitempty"`
	Timestamp   string `json:"timestamp"`
	DurationUs  int64  `json:"duration_us"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Role          string `json:"role"`
	PacingMs      int64  `json:"pacing_ms"`
	DebounceUs    int64  `json:"debounce_us"`
	WaitTimeoutMs int64  `json:"wait_timeout_ms"`
	ArmTimeoutMs  int64  `json:"arm_timeout_ms"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	Broker        string `json:"broker,omitempty"`
	HTTPAddr      string `json:"http_addr"`
}

// NewCycleJSON converts a cycle report for JSON output.
func NewCycleJSON(r handshake.CycleReport) CycleJSON {
	c := CycleJSON{
		Role:        string(r.Role),
		Cycle:       r.Cycle,
		Outcome:     string(r.Outcome),
		Sent:        r.Sent,
		Received:    r.Received,
		Measurement: r.Measurement,
		Truncated:   r.Truncated,
		Timestamp:   r.Started.UTC().Format(time.RFC3339Nano),
		DurationUs:  r.Duration.Microseconds(),
	}
	if r.Err != nil {
		c.Error = r.Err.Error()
	}
	return c
}

func roleJSON(s RoleStats) RoleJSON {
	r := RoleJSON{
		Cycles:           s.Cycles,
		OK:               s.OK,
		TransferFailures: s.TransferFailures,
		WaitTimeouts:     s.WaitTimeouts,
		SensorFailures:   s.SensorFailures,
		Truncations:      s.Truncations,
		LastSent:         s.LastSent,
		LastReceived:     s.LastReceived,
		LastMeasurement:  s.LastMeasurement,
		LastError:        s.LastError,
	}
	if !s.LastAt.IsZero() {
		r.LastAt = s.LastAt.UTC().Format(time.RFC3339)
	}
	return r
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Initiator:     roleJSON(snap.Initiator),
		Responder:     roleJSON(snap.Responder),
		Debounce:      DebounceJSON{Accepted: snap.Debounce.Accepted, Discarded: snap.Debounce.Discarded},
		Gate:          GateJSON{Pending: snap.Gate.Pending, Signals: snap.Gate.Signals, Coalesced: snap.Gate.Coalesced},
		Line:          LineJSON{High: snap.Line.High, Raises: snap.Line.Raises, Lowers: snap.Line.Lowers},
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Role:          snap.Config.Role,
			PacingMs:      snap.Config.PacingMs,
			DebounceUs:    snap.Config.DebounceUs,
			WaitTimeoutMs: snap.Config.WaitTimeoutMs,
			ArmTimeoutMs:  snap.Config.ArmTimeoutMs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
		},
	}
	if snap.Bus != nil {
		inner.Bus = &BusJSON{Transfers: snap.Bus.Transfers, ArmTimeouts: snap.Bus.ArmTimeouts}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint, including recent cycles.
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	for _, r := range snap.Recent {
		inner.Recent = append(inner.Recent, NewCycleJSON(r))
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event. Recent cycles
// are left out to keep lifecycle messages small.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
