package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Tutortoise/helmet-detection-service/detections"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	detections *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helmet_detect_requests_total",
			Help: "Detect requests by mode and HTTP status",
		}, []string{"mode", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helmet_detect_duration_seconds",
			Help:    "Time spent in detection and annotation",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"mode"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helmet_detections_total",
			Help: "Detections returned, by label",
		}, []string{"label"}),
	}

	m.registry.MustRegister(m.requests, m.latency, m.detections)
	return m
}

func (m *Metrics) ObserveRequest(mode string, status int) {
	m.requests.WithLabelValues(mode, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveDetect(mode detections.Mode, elapsed time.Duration, labels []string) {
	m.latency.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
	for _, label := range labels {
		m.detections.WithLabelValues(label).Inc()
	}
}

// RegisterPool exposes session pool usage for one loaded model.
func (m *Metrics) RegisterPool(model string, stats func() detections.PoolStats) {
	labels := prometheus.Labels{"model": model}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "helmet_pool_sessions",
			Help:        "Sessions in the model pool",
			ConstLabels: labels,
		},
		func() float64 { return float64(stats().Size) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "helmet_pool_sessions_in_use",
			Help:        "Sessions currently lent to requests",
			ConstLabels: labels,
		},
		func() float64 { return float64(stats().InUse) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name:        "helmet_pool_acquired_total",
			Help:        "Sessions acquired from the model pool",
			ConstLabels: labels,
		},
		func() float64 { return float64(stats().TotalAcquired) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name:        "helmet_pool_wait_seconds_total",
			Help:        "Time requests spent waiting for a free session",
			ConstLabels: labels,
		},
		func() float64 { return stats().WaitTime.Seconds() },
	))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
