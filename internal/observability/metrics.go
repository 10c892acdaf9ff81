package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the viewer.
type Metrics struct {
	DatasetRecords      prometheus.Gauge
	Interactions        *prometheus.CounterVec
	AnnotationWrites    *prometheus.CounterVec
	StoreErrors         *prometheus.CounterVec
	DiffCacheLookups    *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	InteractionDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
	latency  *latencyWindow
}

// NewMetrics registers the instruments on reg, or on the default registry
// when reg is nil.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	return &Metrics{
		DatasetRecords: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_records",
			Help:      "Number of records in the loaded dataset.",
		}),
		Interactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_total",
			Help:      "Viewer interactions by operation and result.",
		}, []string{"op", "result"}),
		AnnotationWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "annotation_writes_total",
			Help:      "Annotation document saves by backend and result.",
		}, []string{"backend", "result"}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "annotation_store_errors_total",
			Help:      "Annotation store failures by kind.",
		}, []string{"kind"}),
		DiffCacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diff_cache_lookups_total",
			Help:      "Diff memo cache lookups by result.",
		}, []string{"result"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status class.",
		}, []string{"method", "route", "status"}),
		InteractionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "interaction_duration_ms",
			Help:      "Interaction latency in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"op"}),
		gatherer: gatherer,
		latency:  newLatencyWindow(256),
	}
}

// ObserveDiffCache is shaped to be passed as a textdiff lookup hook.
func (m *Metrics) ObserveDiffCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.DiffCacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveInteraction(op, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Interactions.WithLabelValues(op, result).Inc()
	m.InteractionDuration.WithLabelValues(op).Observe(float64(d.Microseconds()) / 1000)
	m.latency.Observe(op, StageTotal, d)
}

// ObserveStage records one stage (load, compute, save) of an op.
func (m *Metrics) ObserveStage(op, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.Observe(op, stage, d)
}

func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.latency.Count(name)
}

func (m *Metrics) SnapshotLatency() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{}
	}
	return m.latency.Snapshot()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
