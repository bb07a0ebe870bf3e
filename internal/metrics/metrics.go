// Package metrics exposes daemon counters in Prometheus format.
//
// Metrics implements daemon.Observer. Every instance owns its registry, so
// tests and multiple daemons in one process never collide on registration.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kswitchd/internal/daemon"
	"kswitchd/internal/layout"
	"kswitchd/internal/store"
)

const namespace = "kswitchd"

// Metrics holds the daemon's collectors.
type Metrics struct {
	registry *prometheus.Registry
	started  time.Time

	correctionsTotal   *prometheus.CounterVec
	skippedTotal       *prometheus.CounterVec
	timeoutsTotal      prometheus.Counter
	correctionDuration prometheus.Histogram
	stateTransitions   *prometheus.CounterVec
	state              *prometheus.GaugeVec
	layoutRequests     *prometheus.CounterVec
}

// New creates Metrics registered on a fresh registry. version is reported
// through the build info gauge.
func New(version string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		started:  time.Now(),

		correctionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Corrections applied, by kind and strategy.",
		}, []string{"kind", "strategy"}),

		skippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_skipped_total",
			Help:      "Correction attempts that produced no replacement, by reason.",
		}, []string{"reason"}),

		timeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correction_timeouts_total",
			Help:      "Correction attempts abandoned after the deadline.",
		}),

		correctionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "correction_duration_seconds",
			Help:      "Time spent deciding on a correction.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),

		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Input state transitions, by target state.",
		}, []string{"state"}),

		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the current input state, 0 otherwise.",
		}, []string{"state"}),

		layoutRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layout_requests_total",
			Help:      "Keyboard layout switches requested after a correction.",
		}, []string{"layout"}),
	}

	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Build information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
	buildInfo.Set(1)

	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the metrics were created.",
	}, func() float64 { return time.Since(m.started).Seconds() })

	reg.MustRegister(
		m.correctionsTotal,
		m.skippedTotal,
		m.timeoutsTotal,
		m.correctionDuration,
		m.stateTransitions,
		m.state,
		m.layoutRequests,
		buildInfo,
		uptime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// MustRegister adds extra collectors, such as gauges backed by daemon
// status, to the registry.
func (m *Metrics) MustRegister(cs ...prometheus.Collector) {
	m.registry.MustRegister(cs...)
}

func (m *Metrics) CorrectionApplied(kind store.JournalKind, strategy string) {
	if strategy == "" {
		strategy = "none"
	}
	m.correctionsTotal.WithLabelValues(string(kind), strategy).Inc()
}

func (m *Metrics) CorrectionSkipped(reason string) {
	m.skippedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) CorrectionTimedOut() {
	m.timeoutsTotal.Inc()
}

func (m *Metrics) CorrectionDuration(d time.Duration) {
	m.correctionDuration.Observe(d.Seconds())
}

var states = []daemon.State{daemon.StateTyping, daemon.StateWordFinalized, daemon.StateIdle, daemon.StateHandoff}

func (m *Metrics) StateChanged(s daemon.State) {
	m.stateTransitions.WithLabelValues(s.String()).Inc()
	for _, st := range states {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(st.String()).Set(v)
	}
}

func (m *Metrics) LayoutRequested(id layout.ID) {
	m.layoutRequests.WithLabelValues(string(id)).Inc()
}

var _ daemon.Observer = (*Metrics)(nil)
