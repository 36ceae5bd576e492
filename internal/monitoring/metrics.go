// Package monitoring exposes Prometheus metrics for investigation jobs and
// their provider calls.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	JobsStarted    prometheus.Counter
	JobsFinished   *prometheus.CounterVec
	JobsRejected   prometheus.Counter
	JobsRunning    prometheus.Gauge
	JobDuration    *prometheus.HistogramVec
	StageDuration  *prometheus.HistogramVec
	SourceFailures *prometheus.CounterVec
	SourceHits     *prometheus.CounterVec
	BreakerState   *prometheus.GaugeVec
}

// New registers the collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid clashing with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		JobsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "osint_jobs_started_total",
			Help: "Total number of investigation jobs started",
		}),
		JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "osint_jobs_finished_total",
			Help: "Total number of investigation jobs finished by terminal status",
		}, []string{"status"}),
		JobsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "osint_jobs_rejected_total",
			Help: "Total number of job submissions rejected because too many were running",
		}),
		JobsRunning: f.NewGauge(prometheus.GaugeOpts{
			Name: "osint_jobs_running",
			Help: "Number of investigation jobs currently running",
		}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "osint_job_duration_seconds",
			Help:    "Duration of investigation jobs in seconds",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"status"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "osint_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		SourceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "osint_source_failures_total",
			Help: "Total number of failed source searches",
		}, []string{"source"}),
		SourceHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "osint_source_hits_total",
			Help: "Total number of raw hits returned per source",
		}, []string{"source"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "osint_source_breaker_state",
			Help: "Circuit breaker state per source (0 closed, 1 open, 2 half-open)",
		}, []string{"source"}),
	}
}

// JobStarted records a job entering Running.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.JobsStarted.Inc()
	m.JobsRunning.Inc()
}

// JobFinished records a job reaching a terminal status.
func (m *Metrics) JobFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.JobsRunning.Dec()
	m.JobsFinished.WithLabelValues(status).Inc()
	m.JobDuration.WithLabelValues(status).Observe(d.Seconds())
}

// JobRejected records a submission refused for capacity.
func (m *Metrics) JobRejected() {
	if m == nil {
		return
	}
	m.JobsRejected.Inc()
}

// Stage records how long one pipeline stage took.
func (m *Metrics) Stage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SourceResult records the outcome of one source search.
func (m *Metrics) SourceResult(source string, hits int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SourceFailures.WithLabelValues(source).Inc()
		return
	}
	m.SourceHits.WithLabelValues(source).Add(float64(hits))
}

// Breaker records a circuit breaker transition.
func (m *Metrics) Breaker(source string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(source).Set(float64(state))
}
