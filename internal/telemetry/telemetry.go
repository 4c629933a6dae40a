// Package telemetry holds the Prometheus collectors shared by novaos services.
//
// Failures that the services deliberately mask from callers (store fallbacks,
// dropped channel payloads, failed producer runs) are counted here so they
// stay observable.
package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "novaos"

// Metrics groups every collector novaos exports.
type Metrics struct {
	registry *prometheus.Registry

	// relay
	RelayReceived  prometheus.Counter
	RelayMalformed prometheus.Counter
	RelayDelivered prometheus.Counter
	RelayEvicted   prometheus.Counter
	RelayClients   *prometheus.GaugeVec

	// snapshot
	SnapshotFallbacks *prometheus.CounterVec

	// journal
	JournalAppends *prometheus.CounterVec

	// producers
	ProducerRuns     *prometheus.CounterVec
	ProducerDuration *prometheus.HistogramVec
}

// New registers all collectors on reg and returns them.
//
// Each registry can carry one set of collectors. Calling New twice with the
// same registry returns an error wrapping
// [prometheus.AlreadyRegisteredError] and leaves the registry unchanged.
func New(reg *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		registry: reg,

		RelayReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "messages_received_total",
			Help:      "Messages received on the relay channel.",
		}),
		RelayMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "malformed_total",
			Help:      "Channel payloads dropped because they are not valid JSON.",
		}),
		RelayDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "deliveries_total",
			Help:      "Messages queued to individual client connections.",
		}),
		RelayEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "evictions_total",
			Help:      "Client connections closed because their send queue was full.",
		}),
		RelayClients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "clients",
			Help:      "Currently open client connections by transport.",
		}, []string{"transport"}),

		SnapshotFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "fallbacks_total",
			Help:      "Counter reads answered with the fallback default.",
		}, []string{"counter", "reason"}),

		JournalAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "appends_total",
			Help:      "Journal append requests by outcome.",
		}, []string{"result"}),

		ProducerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "producer",
			Name:      "runs_total",
			Help:      "Producer runs by outcome.",
		}, []string{"producer", "result"}),
		ProducerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "producer",
			Name:      "run_duration_seconds",
			Help:      "Producer run latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"producer"}),
	}

	collectors := m.collectors()
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			for _, done := range collectors[:i] {
				reg.Unregister(done)
			}
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RelayReceived,
		m.RelayMalformed,
		m.RelayDelivered,
		m.RelayEvicted,
		m.RelayClients,
		m.SnapshotFallbacks,
		m.JournalAppends,
		m.ProducerRuns,
		m.ProducerDuration,
	}
}

// NewNop returns collectors registered on a private registry, for callers
// that do not export metrics.
func NewNop() *Metrics {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		// a fresh registry cannot hold a duplicate
		panic(err)
	}
	return m
}

// Handler serves the Prometheus exposition format for the registry the
// collectors were registered on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
