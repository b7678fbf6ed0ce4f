// Package metrics exposes migration run metrics for Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/woodlandmigrate/internal/constants"
	"github.com/loykin/woodlandmigrate/internal/domain"
)

// Histogram buckets for per-unit durations: 5ms to ~40s.
const (
	bucketStart  = 0.005
	bucketFactor = 2
	bucketCount  = 14
)

// Metrics holds the migration collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	unitsTotal          *prometheus.CounterVec
	failuresTotal       *prometheus.CounterVec
	retriesTotal        prometheus.Counter
	filesTotal          *prometheus.CounterVec
	unitDurationSeconds prometheus.Histogram
	unitsInFlight       prometheus.Gauge
}

// New creates the collectors and registers them on registry. A nil registry
// gets a fresh one.
func New(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	ns := constants.DefaultMetricsNamespace

	m.unitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "units_total",
			Help:      "Units processed by outcome",
		},
		[]string{"outcome"}, // committed, skipped, failed
	)

	m.failuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "unit_failures_total",
			Help:      "Failed units by error kind",
		},
		[]string{"kind"},
	)

	m.retriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "unit_retries_total",
		Help:      "Unit attempts retried after a transient failure",
	})

	m.filesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "files_total",
			Help:      "Documents copied or failed",
		},
		[]string{"result"}, // copied, failed
	)

	m.unitDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "unit_duration_seconds",
		Help:      "Time taken to migrate one unit including retries",
		Buckets:   prometheus.ExponentialBuckets(bucketStart, bucketFactor, bucketCount),
	})

	m.unitsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "units_in_flight",
		Help:      "Units currently being migrated",
	})
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.unitsTotal.Describe(ch)
	m.failuresTotal.Describe(ch)
	m.retriesTotal.Describe(ch)
	m.filesTotal.Describe(ch)
	m.unitDurationSeconds.Describe(ch)
	m.unitsInFlight.Describe(ch)
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.unitsTotal.Collect(ch)
	m.failuresTotal.Collect(ch)
	m.retriesTotal.Collect(ch)
	m.filesTotal.Collect(ch)
	m.unitDurationSeconds.Collect(ch)
	m.unitsInFlight.Collect(ch)
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// UnitStarted marks a unit as in flight.
func (m *Metrics) UnitStarted() {
	if m == nil {
		return
	}
	m.unitsInFlight.Inc()
}

// UnitFinished records the outcome of a unit started with UnitStarted.
// kind is only used for failed units.
func (m *Metrics) UnitFinished(outcome domain.UnitState, kind domain.ErrorKind, d time.Duration) {
	if m == nil {
		return
	}
	m.unitsInFlight.Dec()
	m.unitsTotal.WithLabelValues(string(outcome)).Inc()
	if outcome == domain.StateFailed {
		if kind == "" {
			kind = "unknown"
		}
		m.failuresTotal.WithLabelValues(string(kind)).Inc()
	}
	if outcome != domain.StateSkipped {
		m.unitDurationSeconds.Observe(d.Seconds())
	}
}

// RecordRetry counts one retried attempt.
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retriesTotal.Inc()
}

// RecordFiles counts copied and failed documents.
func (m *Metrics) RecordFiles(copied, failed int) {
	if m == nil {
		return
	}
	if copied > 0 {
		m.filesTotal.WithLabelValues("copied").Add(float64(copied))
	}
	if failed > 0 {
		m.filesTotal.WithLabelValues("failed").Add(float64(failed))
	}
}
