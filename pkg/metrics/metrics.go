// Package metrics records per-run detection metrics in a Prometheus
// registry that can be exported for the node_exporter textfile collector.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "custguard"

// Metrics holds the collectors of one detection run.
type Metrics struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	evaluated    *prometheus.GaugeVec
	anomalies    *prometheus.GaugeVec
	duration     *prometheus.HistogramVec
	transactions prometheus.Gauge
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_runs_total",
			Help:      "Detector runs by outcome.",
		}, []string{"detector", "status"}),
		evaluated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_evaluated",
			Help:      "Rows scored by the last detector run.",
		}, []string{"detector"}),
		anomalies: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "anomalies",
			Help:      "Rows flagged as anomalous by the last detector run.",
		}, []string{"detector"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_duration_seconds",
			Help:      "Wall time of detector runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"detector"}),
		transactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transactions_loaded",
			Help:      "Transactions read from the input source.",
		}),
	}
	m.registry.MustRegister(m.runs, m.evaluated, m.anomalies, m.duration, m.transactions)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe records a successful detector run.
func (m *Metrics) Observe(detector string, evaluated, anomalies int, took time.Duration) {
	m.runs.WithLabelValues(detector, "ok").Inc()
	m.evaluated.WithLabelValues(detector).Set(float64(evaluated))
	m.anomalies.WithLabelValues(detector).Set(float64(anomalies))
	m.duration.WithLabelValues(detector).Observe(took.Seconds())
}

// Failed records a detector run that returned an error.
func (m *Metrics) Failed(detector string) {
	m.runs.WithLabelValues(detector, "error").Inc()
}

// TransactionsLoaded records the size of the input.
func (m *Metrics) TransactionsLoaded(n int) {
	m.transactions.Set(float64(n))
}

// WriteToTextfile writes the registry in the text exposition format.
func (m *Metrics) WriteToTextfile(path string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, m.registry), "writing metrics to %s", path)
}
