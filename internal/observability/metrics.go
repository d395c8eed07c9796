// Package observability groups the Prometheus instruments for the
// detection loop.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	TicksTotal      prometheus.Counter
	TicksSkipped    prometheus.Counter
	DetectionsTotal *prometheus.CounterVec
	DetectorErrors  prometheus.Counter
	StoreErrors     prometheus.Counter
	UniquePersons   prometheus.Gauge
	TickDuration    prometheus.Histogram
}

// NewMetrics registers the instruments with the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the instruments with the given registerer.
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Detection ticks processed.",
		}),
		TicksSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_skipped_total",
			Help:      "Ticks dropped because the previous one was still in flight.",
		}),
		DetectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Processed detections by match outcome.",
		}, []string{"outcome"}),
		DetectorErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_errors_total",
			Help:      "Detector calls that failed or returned malformed data.",
		}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Face memory operations that failed.",
		}),
		UniquePersons: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unique_persons",
			Help:      "Unique persons in the current session.",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_ms",
			Help:      "Duration of one detection tick in milliseconds.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 1500, 3000},
		}),
	}
}

func (m *Metrics) ObserveTickDuration(d time.Duration) {
	m.TickDuration.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
