package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the arena collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	events           *prometheus.CounterVec
	rejected         *prometheus.CounterVec
	roundsCompleted  *prometheus.CounterVec
	finalizeFailures prometheus.Counter
	sessions         prometheus.Gauge
	connections      prometheus.Gauge
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "events_total",
			Help:      "Client events received, by type.",
		}, []string{"type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "events_rejected_total",
			Help:      "Client events rejected, by error code.",
		}, []string{"code"}),
		roundsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "rounds_completed_total",
			Help:      "Rounds completed, by trigger.",
		}, []string{"trigger"}),
		finalizeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "finalize_participant_failures_total",
			Help:      "Participant writes that failed during finalize.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arena",
			Name:      "live_sessions",
			Help:      "Competitions with live in-memory state.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arena",
			Name:      "connections",
			Help:      "Open realtime connections.",
		}),
	}
	reg.MustRegister(
		r.events,
		r.rejected,
		r.roundsCompleted,
		r.finalizeFailures,
		r.sessions,
		r.connections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry exposes the underlying registry for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Event(kind string) {
	if r == nil {
		return
	}
	r.events.WithLabelValues(kind).Inc()
}

func (r *Recorder) Rejected(code string) {
	if r == nil {
		return
	}
	r.rejected.WithLabelValues(code).Inc()
}

func (r *Recorder) RoundCompleted(trigger string) {
	if r == nil {
		return
	}
	r.roundsCompleted.WithLabelValues(trigger).Inc()
}

func (r *Recorder) FinalizeFailures(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.finalizeFailures.Add(float64(n))
}

func (r *Recorder) Sessions(n int) {
	if r == nil {
		return
	}
	r.sessions.Set(float64(n))
}

func (r *Recorder) ConnectionOpened() {
	if r == nil {
		return
	}
	r.connections.Inc()
}

func (r *Recorder) ConnectionClosed() {
	if r == nil {
		return
	}
	r.connections.Dec()
}
