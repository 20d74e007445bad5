package metrics

import (
	"net/http"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/marketplace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketplace"

var jobBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics groups the marketplace collectors on their own registry.
type Metrics struct {
	registry    *prometheus.Registry
	events      *prometheus.CounterVec
	calls       *prometheus.CounterVec
	jobs        prometheus.Histogram
	queue       prometheus.Gauge
	salesVolume prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Committed marketplace events by type.",
		}, []string{"type"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Marketplace calls by operation and outcome.",
		}, []string{"call", "outcome"}),
		jobs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time spent executing and committing a sequenced job.",
			Buckets:   jobBuckets,
		}),
		queue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queued_jobs",
			Help:      "Jobs waiting for the sequencer.",
		}),
		salesVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_volume",
			Help:      "Sum of listing prices of settled sales. Float, so approximate for large values.",
		}),
	}

	m.registry.MustRegister(m.events, m.calls, m.jobs, m.queue, m.salesVolume)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveEvent is registered as an event listener for every type.
func (m *Metrics) ObserveEvent(e entity.Event) {
	m.events.WithLabelValues(string(e.Type)).Inc()
	if e.Type == entity.ItemBoughtEvent && e.Price != nil {
		m.salesVolume.Add(e.Price.Float64())
	}
}

func (m *Metrics) ObserveCall(call string, err error) {
	m.calls.WithLabelValues(call, Outcome(err)).Inc()
}

func (m *Metrics) ObserveJob(d time.Duration) {
	m.jobs.Observe(d.Seconds())
}

func (m *Metrics) JobQueued() {
	m.queue.Inc()
}

func (m *Metrics) JobStarted() {
	m.queue.Dec()
}

// Outcome labels a call result: "ok", the marketplace error kind, or "error".
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := marketplace.Kind(err); kind != "" {
		return kind
	}

	return "error"
}
