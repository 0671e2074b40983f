// Package metrics defines plent's Prometheus collectors.
//
// Every method is safe on a nil *Metrics, so components can be built
// without instrumentation in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "plent"

// Metrics holds the collectors.
type Metrics struct {
	events          *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	handlerErrors   *prometheus.CounterVec
	changes         *prometheus.CounterVec
	pushFailures    *prometheus.CounterVec
	auditFailures   *prometheus.CounterVec
	tracked         prometheus.Gauge
	pruned          prometheus.Counter
	queueDepth      prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: type (message_create, reaction_add, ...)
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "events_total",
			Help:      "Platform events handled",
		}, []string{"type"}),

		handlerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "handler_duration_seconds",
			Help:      "Time spent handling one event",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"type"}),

		// Labels: class (extraction, vcs, persistence, authorization)
		handlerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "handler_errors_total",
			Help:      "Handler failures by class",
		}, []string{"class"}),

		// Labels: repo, action (add, update, remove)
		changes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repo",
			Name:      "changes_total",
			Help:      "Committed artifact changes",
		}, []string{"repo", "action"}),

		pushFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repo",
			Name:      "push_failures_total",
			Help:      "Failed pushes (logged and ignored)",
		}, []string{"repo"}),

		auditFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "failures_total",
			Help:      "Audit messages that could not be delivered",
		}, []string{"kind"}),

		tracked: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "entries",
			Help:      "Tracked source messages",
		}),

		pruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "pruned_total",
			Help:      "Tracker entries forgotten by age",
		}),

		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "queue_depth",
			Help:      "Events waiting to be dispatched",
		}),
	}
}

// Event records one handled event.
func (m *Metrics) Event(eventType string, took time.Duration) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
	m.handlerDuration.WithLabelValues(eventType).Observe(took.Seconds())
}

// HandlerError counts a handler failure.
func (m *Metrics) HandlerError(class string) {
	if m == nil {
		return
	}
	m.handlerErrors.WithLabelValues(class).Inc()
}

// Change counts a committed change.
func (m *Metrics) Change(repo, action string) {
	if m == nil {
		return
	}
	m.changes.WithLabelValues(repo, action).Inc()
}

// PushFailed counts a failed push.
func (m *Metrics) PushFailed(repo string) {
	if m == nil {
		return
	}
	m.pushFailures.WithLabelValues(repo).Inc()
}

// AuditFailed counts an undelivered audit message.
func (m *Metrics) AuditFailed(kind string) {
	if m == nil {
		return
	}
	m.auditFailures.WithLabelValues(kind).Inc()
}

// Tracked sets the tracker size.
func (m *Metrics) Tracked(n int) {
	if m == nil {
		return
	}
	m.tracked.Set(float64(n))
}

// Pruned counts forgotten tracker entries.
func (m *Metrics) Pruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pruned.Add(float64(n))
}

// QueueDepth sets the number of queued events.
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
