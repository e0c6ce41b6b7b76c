package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the analysis engine.
type Metrics struct {
	RunsTotal        prometheus.Counter
	RunFailures      prometheus.Counter
	RunDuration      prometheus.Histogram
	RecordsSeen      prometheus.Counter
	RecordsSkipped   prometheus.Counter
	ChangesCaptured  prometheus.Counter
	AccountsDeferred prometheus.Counter
	GhostCandidates  prometheus.Gauge
}

// New creates and registers all analysis metrics.
func New() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "deployassist_analysis_runs_total",
			Help: "Total number of completed analysis runs",
		}),
		RunFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "deployassist_analysis_run_failures_total",
			Help: "Total number of analysis runs aborted by an error",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "deployassist_analysis_run_duration_seconds",
			Help:    "Wall-clock duration of analysis runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		RecordsSeen: promauto.NewCounter(prometheus.CounterOpts{
			Name: "deployassist_analysis_records_seen_total",
			Help: "Total number of source records fetched across runs",
		}),
		RecordsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "deployassist_analysis_records_skipped_total",
			Help: "Total number of records skipped due to malformed data",
		}),
		ChangesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "deployassist_analysis_changes_captured_total",
			Help: "Total number of audit ledger entries appended",
		}),
		AccountsDeferred: promauto.NewCounter(prometheus.CounterOpts{
			Name: "deployassist_analysis_accounts_deferred_total",
			Help: "Total number of account units deferred past the soft timeout",
		}),
		GhostCandidates: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "deployassist_ghost_candidates",
			Help: "Ghost account candidates found by the most recent run",
		}),
	}
}

// ObserveRun records the outcome of one run.
func (m *Metrics) ObserveRun(duration time.Duration, failed bool) {
	m.RunsTotal.Inc()
	if failed {
		m.RunFailures.Inc()
	}
	m.RunDuration.Observe(duration.Seconds())
}
