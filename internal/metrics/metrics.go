// Package metrics exposes Prometheus collectors for the monitor HTTP server.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP holds the request collectors of the monitor server.
type HTTP struct {
	requestsTotal          *prometheus.CounterVec
	requestDurationSeconds *prometheus.HistogramVec
}

// NewHTTP registers the request collectors against reg (default registry
// when nil).
func NewHTTP(reg prometheus.Registerer) (*HTTP, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	h := &HTTP{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trainlog_http_requests_total",
				Help: "Total number of monitor HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		),
		requestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trainlog_http_request_duration_seconds",
				Help:    "Histogram of monitor HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		),
	}
	for _, c := range []prometheus.Collector{h.requestsTotal, h.requestDurationSeconds} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register http collector: %w", err)
		}
	}
	return h, nil
}

// ObserveHTTPRequest increments the HTTP request metrics.
func (h *HTTP) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	h.requestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	h.requestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns an http.Handler exposing the metrics gathered by g
// (default gatherer when nil).
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
