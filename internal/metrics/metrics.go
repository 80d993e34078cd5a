// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	// ActivitiesProcessed counts dispatched activities.
	ActivitiesProcessed *prometheus.CounterVec

	// DispatchDuration tracks time spent in App.Process.
	DispatchDuration *prometheus.HistogramVec

	// StreamChunks counts activities sent by stream aggregators.
	StreamChunks *prometheus.CounterVec

	// SendRetries counts retried channel sends.
	SendRetries prometheus.Counter

	// RequestDuration tracks gateway HTTP request duration.
	RequestDuration *prometheus.HistogramVec

	// DevtoolsClients tracks connected devtools websockets.
	DevtoolsClients prometheus.Gauge
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		ActivitiesProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botkit_activities_processed_total",
				Help: "Total activities dispatched",
			},
			[]string{"type", "status"},
		),
		DispatchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "botkit_dispatch_duration_seconds",
				Help:    "Activity dispatch duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"type"},
		),
		StreamChunks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botkit_stream_chunks_total",
				Help: "Total stream activities sent",
			},
			[]string{"kind"},
		),
		SendRetries: f.NewCounter(
			prometheus.CounterOpts{
				Name: "botkit_send_retries_total",
				Help: "Total retried channel sends",
			},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "botkit_http_request_duration_seconds",
				Help:    "Gateway HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		DevtoolsClients: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "botkit_devtools_clients",
				Help: "Number of connected devtools clients",
			},
		),
	}
}

// RecordDispatch records one App.Process call.
func (m *Metrics) RecordDispatch(activityType string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.ActivitiesProcessed.WithLabelValues(activityType, strconv.Itoa(status)).Inc()
	m.DispatchDuration.WithLabelValues(activityType).Observe(d.Seconds())
}

// RecordChunk records a stream send of the given kind
// (informative, streaming or final).
func (m *Metrics) RecordChunk(kind string) {
	if m == nil {
		return
	}
	m.StreamChunks.WithLabelValues(kind).Inc()
}

// RecordRetry records a retried send.
func (m *Metrics) RecordRetry(error, time.Duration) {
	if m == nil {
		return
	}
	m.SendRetries.Inc()
}

// RecordRequest records a gateway HTTP request.
func (m *Metrics) RecordRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(d.Seconds())
}

// ClientConnected adjusts the devtools client gauge by delta.
func (m *Metrics) ClientConnected(delta int) {
	if m == nil {
		return
	}
	m.DevtoolsClients.Add(float64(delta))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
