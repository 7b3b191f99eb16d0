// Package metrics collects Prometheus counters and histograms for
// initd, retargeted from the teacher's sandbox-lifecycle metrics to
// the job/event lifecycle this supervisor actually drives.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus counters and histograms for initd.
type Metrics struct {
	registry             *prometheus.Registry
	jobTransitionsTotal  *prometheus.CounterVec
	jobRespawnTotal      *prometheus.CounterVec
	jobFailuresTotal     *prometheus.CounterVec
	jobUptimeSeconds     *prometheus.HistogramVec
	eventsTotal          *prometheus.CounterVec
	instancesGauge       *prometheus.GaugeVec
}

// New constructs a metrics registry and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	jobTransitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "initd",
			Subsystem: "job",
			Name:      "transitions_total",
			Help:      "Total number of job state transitions.",
		},
		[]string{"class", "from", "to"},
	)
	jobRespawnTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "initd",
			Subsystem: "job",
			Name:      "respawn_total",
			Help:      "Total number of automatic respawns.",
		},
		[]string{"class"},
	)
	jobFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "initd",
			Subsystem: "job",
			Name:      "failures_total",
			Help:      "Total number of recorded job failures, by failing process slot.",
		},
		[]string{"class", "process"},
	)
	jobUptimeSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "initd",
			Subsystem: "job",
			Name:      "uptime_seconds",
			Help:      "Time a job instance spent RUNNING before it next left that state.",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 3600, 21600, 86400},
		},
		[]string{"class"},
	)
	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "initd",
			Subsystem: "event",
			Name:      "finished_total",
			Help:      "Total number of events that reached FINISHED, by failed flag.",
		},
		[]string{"name", "failed"},
	)
	instancesGauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "initd",
			Subsystem: "job",
			Name:      "instances",
			Help:      "Current number of live instances per class, by state.",
		},
		[]string{"class", "state"},
	)

	registry.MustRegister(
		jobTransitionsTotal,
		jobRespawnTotal,
		jobFailuresTotal,
		jobUptimeSeconds,
		eventsTotal,
		instancesGauge,
	)

	return &Metrics{
		registry:            registry,
		jobTransitionsTotal: jobTransitionsTotal,
		jobRespawnTotal:     jobRespawnTotal,
		jobFailuresTotal:    jobFailuresTotal,
		jobUptimeSeconds:    jobUptimeSeconds,
		eventsTotal:         eventsTotal,
		instancesGauge:      instancesGauge,
	}
}

// Handler returns an HTTP handler that serves the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncTransition records one job state transition.
func (m *Metrics) IncTransition(class, from, to string) {
	if m == nil {
		return
	}
	m.jobTransitionsTotal.WithLabelValues(class, from, to).Inc()
}

// IncRespawn records one automatic respawn.
func (m *Metrics) IncRespawn(class string) {
	if m == nil {
		return
	}
	m.jobRespawnTotal.WithLabelValues(class).Inc()
}

// IncFailure records one recorded job failure.
func (m *Metrics) IncFailure(class, process string) {
	if m == nil {
		return
	}
	m.jobFailuresTotal.WithLabelValues(class, process).Inc()
}

// ObserveUptime records how long an instance spent RUNNING.
func (m *Metrics) ObserveUptime(class string, d time.Duration) {
	if m == nil || d < 0 {
		return
	}
	m.jobUptimeSeconds.WithLabelValues(class).Observe(d.Seconds())
}

// IncEvent records one event reaching FINISHED.
func (m *Metrics) IncEvent(name string, failed bool) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(name, boolLabel(failed)).Inc()
}

// SetInstances sets the live-instance gauge for one (class, state) pair.
func (m *Metrics) SetInstances(class, state string, count int) {
	if m == nil {
		return
	}
	m.instancesGauge.WithLabelValues(class, state).Set(float64(count))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
