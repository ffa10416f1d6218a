// Package metrics exposes run statistics to Prometheus. Metrics is a router
// listener; it only updates in-memory collectors so it never blocks the worker.
package metrics

import (
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayusman/yolodesk/internal/router"
	"github.com/ayusman/yolodesk/internal/worker"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame counters
	FramesIn  atomic.Uint64
	FramesOut atomic.Uint64

	// Latest values
	Progress atomic.Int64
	FPS      atomic.Int64

	detections *prometheus.CounterVec
	statuses   *prometheus.CounterVec

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors. When r is
// set, its mailbox drop count is exported too.
func New(r *router.Router) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		detections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yolodesk_detections_total",
				Help: "Detections surviving suppression, by class",
			},
			[]string{"class"},
		),
		statuses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yolodesk_status_total",
				Help: "Status messages published, by kind",
			},
			[]string{"status"},
		),
	}

	m.registerPrometheusMetrics(r)

	return m
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics(r *router.Router) {
	m.registry.MustRegister(m.detections, m.statuses)

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "yolodesk_frames_in_total",
			Help: "Raw frames pulled from sources",
		},
		func() float64 { return float64(m.FramesIn.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "yolodesk_frames_out_total",
			Help: "Annotated frames published",
		},
		func() float64 { return float64(m.FramesOut.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "yolodesk_progress_permille",
			Help: "Progress of the active run in [0, 1000]",
		},
		func() float64 { return float64(m.Progress.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "yolodesk_fps",
			Help: "Frames per second over the last report window",
		},
		func() float64 { return float64(m.FPS.Load()) },
	))

	if r != nil {
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "yolodesk_mailbox_drops_total",
				Help: "Events overwritten before a subscriber read them",
			},
			func() float64 { return float64(r.Drops()) },
		))
	}
}

// OnEvent implements router.Listener.
func (m *Metrics) OnEvent(ev router.Event) {
	switch ev.Kind {
	case router.Input:
		m.FramesIn.Add(1)
	case router.Output:
		m.FramesOut.Add(1)
	case router.Result:
		for class, n := range ev.Counts {
			if n > 0 {
				m.detections.WithLabelValues(class).Add(float64(n))
			}
		}
	case router.Progress:
		m.Progress.Store(int64(ev.Progress))
	case router.FPS:
		if fps, ok := worker.ParseFPS(ev.Message); ok {
			m.FPS.Store(int64(fps))
		}
	case router.Status:
		m.statuses.WithLabelValues(statusLabel(ev.Message)).Inc()
	}
}

// statusLabel keeps label cardinality bounded by folding error details.
func statusLabel(msg string) string {
	if strings.HasPrefix(msg, worker.StatusErrPrefix) {
		return "error"
	}
	return strings.ToLower(msg)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
