// Package jobmetrics instruments background work: the SLA sweep and the
// notification delivery tasks.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Alert outcomes reported by AddAlert.
const (
	OutcomeFired      = "fired"
	OutcomeSuppressed = "suppressed"
	OutcomeFailed     = "failed"
)

// Metrics holds the job collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	alerts      *prometheus.CounterVec
	evaluated   *prometheus.CounterVec
	now         func() time.Time
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer, or once on the default
// registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return newMetrics(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// Tracker times one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run outcome and returns err unchanged.
func (t *Tracker) End(err error) error {
	m := t.metrics
	if m == nil || t.job == "" {
		return err
	}
	m.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	if err != nil {
		m.runs.WithLabelValues(t.job, "failure").Inc()
		m.failures.WithLabelValues(t.job).Inc()
		return err
	}
	m.runs.WithLabelValues(t.job, "success").Inc()
	m.lastSuccess.WithLabelValues(t.job).Set(float64(m.now().Unix()))
	return nil
}

// AddAlert counts one alert decision for class.
func (m *Metrics) AddAlert(class, outcome string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(class, outcome).Inc()
}

// AddEvaluated counts tickets that evaluated into state.
func (m *Metrics) AddEvaluated(state string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.evaluated.WithLabelValues(state).Add(float64(count))
}

func newMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cargodesk_jobs_total",
			Help: "Job runs by job name and status.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cargodesk_jobs_failures_total",
			Help: "Failed job runs by job name.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cargodesk_job_duration_seconds",
			Help:    "Job run duration in seconds.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cargodesk_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cargodesk_sla_alerts_total",
			Help: "SLA alert decisions by class and outcome.",
		}, []string{"class", "outcome"}),
		evaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cargodesk_sla_tickets_evaluated_total",
			Help: "Tickets evaluated by the SLA monitor by resulting state.",
		}, []string{"state"}),
		now: time.Now,
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.lastSuccess, m.alerts, m.evaluated)
	return m
}
