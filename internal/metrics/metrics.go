// Package metrics exposes handshake activity as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sweeney/spi-handshake/internal/handshake"
	"github.com/sweeney/spi-handshake/internal/status"
)

const namespace = "spi_handshake"

// Metrics records cycle reports and exports live debounce, gate and line counters.
// It owns a private registry so tests and multiple instances never collide.
type Metrics struct {
	registry *prometheus.Registry

	cycles      *prometheus.CounterVec
	truncations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	measurement prometheus.Gauge

	mqttConnected prometheus.Gauge
}

// New creates Metrics with its own registry, including Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Loop cycles by role and outcome.",
			},
			[]string{"role", "outcome"},
		),
		truncations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payload_truncations_total",
				Help:      "Outbound payloads cut short by the buffer size.",
			},
			[]string{"role"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Time from cycle start to transfer completion.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"role"},
		),
		measurement: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_measurement",
			Help:      "Most recent measurement sent by the responder.",
		}),
		mqttConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "1 while the MQTT broker connection is up.",
		}),
	}
	m.registry.MustRegister(
		m.cycles, m.truncations, m.duration, m.measurement, m.mqttConnected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe implements handshake.Observer.
func (m *Metrics) Observe(r handshake.CycleReport) {
	role := string(r.Role)
	m.cycles.WithLabelValues(role, string(r.Outcome)).Inc()
	if r.Truncated {
		m.truncations.WithLabelValues(role).Inc()
	}
	if r.Outcome == handshake.OutcomeOK {
		m.duration.WithLabelValues(role).Observe(r.Duration.Seconds())
		if r.Role == handshake.RoleResponder {
			m.measurement.Set(float64(r.Measurement))
		}
	}
}

// Attach exports live counters read at scrape time. Nil arguments are skipped.
func (m *Metrics) Attach(d status.DebounceCounter, g status.GateCounter, l status.LineCounter) {
	if d != nil {
		m.registry.MustRegister(
			counterFunc("debounce_accepted_total", "Rising edges accepted by the debouncer.", d.Accepted),
			counterFunc("debounce_discarded_total", "Rising edges discarded as ringing.", d.Discarded),
		)
	}
	if g != nil {
		m.registry.MustRegister(
			counterFunc("ready_gate_signals_total", "Signals that set the ready gate.", g.Signals),
			counterFunc("ready_gate_coalesced_total", "Signals absorbed by an already set gate.", g.Coalesced),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ready_gate_pending",
				Help:      "1 while a ready signal is waiting to be consumed.",
			}, func() float64 { return boolFloat(g.Pending()) }),
		)
	}
	if l != nil {
		m.registry.MustRegister(
			counterFunc("ready_line_raises_total", "Low to high writes of the ready line.", l.Raises),
			counterFunc("ready_line_lowers_total", "High to low writes of the ready line.", l.Lowers),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ready_line_high",
				Help:      "Current logical level of the ready line.",
			}, func() float64 { return boolFloat(l.High()) }),
		)
	}
}

// AttachBus exports the in-memory bus exchange counters.
func (m *Metrics) AttachBus(b status.BusCounter) {
	m.registry.MustRegister(
		counterFunc("bus_transfers_total", "Completed exchanges on the loopback bus.", b.Transfers),
		counterFunc("bus_arm_timeouts_total", "Armed transactions withdrawn on timeout.", b.Timeouts),
	)
}

// SetMQTTConnected records the broker connection state.
func (m *Metrics) SetMQTTConnected(connected bool) {
	m.mqttConnected.Set(boolFloat(connected))
}

func counterFunc(name, help string, fn func() uint64) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) })
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
