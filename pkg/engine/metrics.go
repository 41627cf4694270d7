package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the run counters. A nil *Metrics records nothing.
type Metrics struct {
	Executions    *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	Purges        prometheus.Counter
	ReleaseErrors prometheus.Counter
}

// NewMetrics creates and registers the run metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Executions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gaiandb_executions_total",
			Help: "Statement runs by request kind and result (success or failing stage).",
		}, []string{"kind", "result"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gaiandb_execution_duration_seconds",
			Help:    "Run duration from reservation to release.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		Purges: f.NewCounter(prometheus.CounterOpts{
			Name: "gaiandb_pool_purges_total",
			Help: "Pool purges triggered by statement creation failures.",
		}),
		ReleaseErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "gaiandb_release_errors_total",
			Help: "Connection releases that returned an error.",
		}),
	}
}

func (m *Metrics) observeRun(kind Kind, outcome Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if f, ok := outcome.(*Failure); ok {
		result = string(f.Stage)
	}
	m.Executions.WithLabelValues(kind.String(), result).Inc()
	m.Duration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) incPurges() {
	if m == nil {
		return
	}
	m.Purges.Inc()
}

func (m *Metrics) incReleaseErrors() {
	if m == nil {
		return
	}
	m.ReleaseErrors.Inc()
}
