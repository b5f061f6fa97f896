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
	RunStarts         *prometheus.CounterVec
	RunOutcomes       *prometheus.CounterVec
	StepEvents        *prometheus.CounterVec
	StreamSubscribers prometheus.Gauge
	RunDuration       prometheus.Histogram

	stepWindow *stepWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		RunStarts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_starts_total",
			Help:      "Start requests by result (started, already_running, rejected).",
		}, []string{"result"}),
		RunOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Finished workflow runs by outcome (success, failed, cancelled).",
		}, []string{"outcome"}),
		StepEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_events_total",
			Help:      "Published step events by event phase.",
		}, []string{"phase"}),
		StreamSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_subscribers",
			Help:      "Currently connected step-event stream subscribers.",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished workflow runs in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		stepWindow: newStepWindow(256),
	}
}

// RegisterDroppedEvents exposes the broadcaster's cumulative drop counter.
func (m *Metrics) RegisterDroppedEvents(namespace string, fn func() float64) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_dropped_events",
		Help:      "Step events dropped due to subscriber buffer overflow.",
	}, fn)
}

func (m *Metrics) ObserveRunDuration(d time.Duration) {
	m.RunDuration.Observe(d.Seconds())
}

// ObserveStepDuration feeds the rolling per-action duration window backing
// the perf endpoint.
func (m *Metrics) ObserveStepDuration(action string, ms float64) {
	m.stepWindow.Observe(action, ms)
}

func (m *Metrics) ObserveStepIndicator(name string) {
	m.stepWindow.ObserveIndicator(name)
}

func (m *Metrics) SnapshotSteps() StepWindowSnapshot {
	return m.stepWindow.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
