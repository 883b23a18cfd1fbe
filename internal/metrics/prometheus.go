package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lensai"

// PrometheusRecorder exports metrics from its own registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	eventsIngested  *prometheus.CounterVec
	eventsProcessed *prometheus.CounterVec
	batchSize       prometheus.Histogram
	batchDuration   prometheus.Histogram
	queueDepth      prometheus.Gauge
	ingestLag       prometheus.Histogram
	keysCreated     prometheus.Counter
	keysRevoked     prometheus.Counter
}

// NewPrometheus registers the LensAI metrics plus Go and process collectors on a fresh registry.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		// status: accepted, invalid, unauthorized, failed
		eventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ingested_total",
			Help:      "Usage events received on the ingest endpoint, by outcome.",
		}, []string{"status"}),
		// status: success, failed, dead_lettered
		eventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Usage events handled by the stream worker, by outcome.",
		}, []string{"status"}),
		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_batch_size",
			Help:      "Number of events per worker batch.",
			Buckets:   []float64{1, 10, 50, 100, 250, 500},
		}),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_batch_duration_seconds",
			Help:      "Time to write and acknowledge one worker batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_queue_depth",
			Help:      "Entries in the usage event stream.",
		}),
		ingestLag: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_ingest_lag_seconds",
			Help:      "Delay between publishing an event and writing it to the sink.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		}),
		keysCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_keys_created_total",
			Help:      "API keys issued through the API.",
		}),
		keysRevoked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_keys_revoked_total",
			Help:      "API keys revoked through the API.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry returns the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusRecorder) IncEventIngested(status string) {
	p.eventsIngested.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncEventProcessed(status string) {
	p.eventsProcessed.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveEventBatchSize(size int) {
	p.batchSize.Observe(float64(size))
}

func (p *PrometheusRecorder) ObserveEventBatchDuration(d time.Duration) {
	p.batchDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetEventQueueDepth(depth int64) {
	p.queueDepth.Set(float64(depth))
}

func (p *PrometheusRecorder) ObserveEventIngestLag(lag time.Duration) {
	p.ingestLag.Observe(lag.Seconds())
}

func (p *PrometheusRecorder) IncAPIKeyCreated() {
	p.keysCreated.Inc()
}

func (p *PrometheusRecorder) IncAPIKeyRevoked() {
	p.keysRevoked.Inc()
}
