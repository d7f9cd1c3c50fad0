package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics records runs of the scheduled maintenance jobs.
type JobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rows     *prometheus.CounterVec
}

// NewJobMetrics registers the maintenance job collectors on reg.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_job_runs_total",
		Help: "Maintenance job executions by outcome.",
	}, []string{"job", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maintenance_job_duration_seconds",
		Help:    "Duration of maintenance jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_job_rows_total",
		Help: "Rows removed or expired by maintenance jobs.",
	}, []string{"job"})
	reg.MustRegister(runs, duration, rows)
	return &JobMetrics{runs: runs, duration: duration, rows: rows}
}

func (m *JobMetrics) ObserveRun(job string, err error, elapsed time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	name := normalizeLabel(job)
	m.runs.WithLabelValues(name, outcome(err)).Inc()
	m.duration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *JobMetrics) AddRows(job string, n int64) {
	if m == nil || m.rows == nil || n <= 0 {
		return
	}
	m.rows.WithLabelValues(normalizeLabel(job)).Add(float64(n))
}
