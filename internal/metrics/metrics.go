// Package metrics exposes Prometheus counters and histograms for repository
// method executions.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Query outcomes recorded in the outcome label.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the collectors for one registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	queries      *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	mutationRows *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
// Registering twice on the same registry returns the existing collectors.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repokit_queries_total",
				Help: "Total number of repository method executions",
			},
			[]string{"method", "kind", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "repokit_query_duration_seconds",
				Help:    "Duration of repository method executions",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"kind"},
		),
		mutationRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repokit_mutation_rows_total",
				Help: "Total number of rows affected by bulk mutations",
			},
			[]string{"method"},
		),
	}

	var err error
	m.queries, err = register(reg, m.queries)
	if err != nil {
		return nil, err
	}
	m.duration, err = register(reg, m.duration)
	if err != nil {
		return nil, err
	}
	m.mutationRows, err = register(reg, m.mutationRows)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveQuery records one method execution.
func (m *Metrics) ObserveQuery(method, kind string, err error, d time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.queries.WithLabelValues(method, kind, outcome).Inc()
	m.duration.WithLabelValues(kind).Observe(d.Seconds())
}

// AddMutationRows adds the rows affected by a bulk mutation.
func (m *Metrics) AddMutationRows(method string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.mutationRows.WithLabelValues(method).Add(float64(n))
}
