// Package metrics exposes Prometheus collectors for the station crawler.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JakeFAU/weather-station-crawler/internal/crawler"
)

var (
	apiResponseSeconds     prometheus.Histogram
	cycleDurationSeconds   prometheus.Histogram
	apiLastCall            *prometheus.GaugeVec
	newDataTimestamp       *prometheus.GaugeVec
	endpointRequestsTotal  *prometheus.CounterVec
	endpointRequestSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		apiResponseSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    crawler.MetricAPILatency,
				Help:    "Weather API response time in seconds of last request.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		cycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    crawler.MetricCycleDuration,
				Help:    "Station crawler process cycle time in seconds.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		apiLastCall = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: crawler.GaugeLastCall,
				Help: "Unix timestamp of the last successful weather API call, labeled by station.",
			},
			[]string{"station"},
		)

		newDataTimestamp = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: crawler.GaugeNewData,
				Help: "Unix timestamp at which new weather data was last persisted, labeled by station.",
			},
			[]string{"station"},
		)

		endpointRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_endpoint_requests_total",
				Help: "Scrapes and health checks served by the metrics endpoint, labeled by route and code.",
			},
			[]string{"route", "code"},
		)

		endpointRequestSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_endpoint_request_duration_seconds",
				Help:    "Metrics endpoint response time in seconds, labeled by route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"route"},
		)
	})
}

// Sink adapts the package collectors to crawler.MetricsSink.
type Sink struct{}

// NewSink initializes the collectors and returns a Sink bound to them.
func NewSink() *Sink {
	Init()
	return &Sink{}
}

// ObserveLatency records d on the named histogram. Unknown names are dropped.
func (*Sink) ObserveLatency(histogram string, d time.Duration) {
	switch histogram {
	case crawler.MetricAPILatency:
		apiResponseSeconds.Observe(d.Seconds())
	case crawler.MetricCycleDuration:
		cycleDurationSeconds.Observe(d.Seconds())
	}
}

// SetGauge sets the named gauge for label. Unknown names are dropped.
func (*Sink) SetGauge(gauge, label string, value float64) {
	switch gauge {
	case crawler.GaugeLastCall:
		apiLastCall.WithLabelValues(label).Set(value)
	case crawler.GaugeNewData:
		newDataTimestamp.WithLabelValues(label).Set(value)
	}
}

func observeEndpointRequest(route string, code int, d time.Duration) {
	endpointRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	endpointRequestSeconds.WithLabelValues(route).Observe(d.Seconds())
}
