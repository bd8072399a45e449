package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors. Each server has its own
// registry.
type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	exchanges        *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
	activeExchanges  prometheus.Gauge
	observers        prometheus.Gauge
	rateLimited      prometheus.Counter
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatsync",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration, streamed responses included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "exchanges_total",
			Help:      "Finished chat exchanges by provider and outcome.",
		}, []string{"provider", "outcome"}),
		exchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatsync",
			Name:      "exchange_duration_seconds",
			Help:      "Duration of chat exchanges.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider"}),
		activeExchanges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatsync",
			Name:      "active_exchanges",
			Help:      "Chat exchanges currently streaming.",
		}),
		observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatsync",
			Name:      "observers",
			Help:      "Connected live observers.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "rate_limited_total",
			Help:      "Chat requests rejected by the rate limiter.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.exchanges,
		m.exchangeDuration,
		m.activeExchanges,
		m.observers,
		m.rateLimited,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeRequest(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) observeExchange(provider, outcome string, d time.Duration) {
	m.exchanges.WithLabelValues(provider, outcome).Inc()
	m.exchangeDuration.WithLabelValues(provider).Observe(d.Seconds())
}
