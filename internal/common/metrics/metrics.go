package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mathtutor"

// Metrics owns a private registry with the HTTP and evaluation collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	stageDuration *prometheus.HistogramVec
	stageTotal    *prometheus.CounterVec
	verdictTotal  *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec
	ratingUpdates *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed.",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		requestInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "in_flight_requests",
				Help:      "Number of in-flight HTTP requests.",
			},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "evaluation",
				Name:      "stage_duration_seconds",
				Help:      "Duration of each evaluation stage.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
			},
			[]string{"stage", "provider"},
		),
		stageTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "evaluation",
				Name:      "stage_total",
				Help:      "Evaluation stage runs by outcome.",
			},
			[]string{"stage", "provider", "outcome"},
		),
		verdictTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "evaluation",
				Name:      "verdicts_total",
				Help:      "Completed evaluations by parsed verdict.",
			},
			[]string{"approach", "answer"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "evaluation",
				Name:      "breaker_state",
				Help:      "Model provider circuit state (0 closed, 1 half-open, 2 open).",
			},
			[]string{"breaker"},
		),
		ratingUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rating",
				Name:      "updates_total",
				Help:      "Rating updates applied from graded submissions.",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.stageDuration,
		m.stageTotal,
		m.verdictTotal,
		m.breakerState,
		m.ratingUpdates,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RequestStarted() {
	if m == nil {
		return
	}
	m.requestInFlight.Inc()
}

func (m *Metrics) RequestFinished(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestInFlight.Dec()
	m.requestTotal.WithLabelValues(method, route, status).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) ObserveStage(stage, provider, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageTotal.WithLabelValues(stage, provider, outcome).Inc()
	m.stageDuration.WithLabelValues(stage, provider).Observe(duration.Seconds())
}

func (m *Metrics) ObserveVerdict(approach, answer string) {
	if m == nil {
		return
	}
	m.verdictTotal.WithLabelValues(approach, answer).Inc()
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) ObserveRatingUpdate(outcome string) {
	if m == nil {
		return
	}
	m.ratingUpdates.WithLabelValues(outcome).Inc()
}
