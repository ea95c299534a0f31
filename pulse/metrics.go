package pulse

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/ixgest/types"
)

// Metrics counts pool activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	items        *prometheus.CounterVec
	failures     *prometheus.CounterVec
	attempts     prometheus.Counter
	statements   prometheus.Counter
	fetchSeconds prometheus.Histogram
}

// NewMetrics registers the pool metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pwcmeta_items_total",
			Help: "Work items completed, by status.",
		}, []string{"status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pwcmeta_fetch_failures_total",
			Help: "Failed fetch attempts, by kind.",
		}, []string{"kind"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pwcmeta_fetch_attempts_total",
			Help: "Fetch calls made, including retries.",
		}),
		statements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pwcmeta_statements_total",
			Help: "Statements written to artifacts.",
		}),
		fetchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pwcmeta_fetch_seconds",
			Help:    "Duration of single fetch calls.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	m.registry.MustRegister(m.items, m.failures, m.attempts, m.statements, m.fetchSeconds)
	return m
}

// Registry exposes the underlying registry, e.g. for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) observeAttempt(d time.Duration, failureKind string) {
	if m == nil {
		return
	}
	m.attempts.Inc()
	m.fetchSeconds.Observe(d.Seconds())
	if failureKind != "" {
		m.failures.WithLabelValues(failureKind).Inc()
	}
}

func (m *Metrics) observeResult(r types.Result) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(string(r.Status())).Inc()
	m.statements.Add(float64(r.Statements))
}

// WriteTextfile writes every metric in node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrapf(err, "write metrics textfile %s", path)
	}
	return nil
}
