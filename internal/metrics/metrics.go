// Package metrics defines the Prometheus collectors exported on /api/metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	HTTPRequests   *prometheus.CounterVec
	HTTPLatency    *prometheus.HistogramVec
	Captured       *prometheus.CounterVec
	PersistFailed  prometheus.Counter
	Subscribers    prometheus.Gauge
	DroppedEvents  prometheus.Counter
	GeoLookups     *prometheus.CounterVec
	RetentionSwept prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livehook_http_requests_total",
			Help: "Total HTTP requests served",
		}, []string{"route", "method", "code"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livehook_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		Captured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livehook_captured_requests_total",
			Help: "Requests captured on an endpoint",
		}, []string{"method"}),
		PersistFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livehook_persist_failures_total",
			Help: "Captured requests that could not be stored",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livehook_hub_subscribers",
			Help: "Open live-stream subscriptions",
		}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livehook_hub_dropped_events_total",
			Help: "Events discarded because a subscriber queue was full",
		}),
		GeoLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livehook_geo_lookups_total",
			Help: "Origin lookups by result",
		}, []string{"result"}),
		RetentionSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livehook_retention_deleted_total",
			Help: "Captured requests removed by the retention sweep",
		}),
	}
	reg.MustRegister(m.HTTPRequests, m.HTTPLatency, m.Captured, m.PersistFailed,
		m.Subscribers, m.DroppedEvents, m.GeoLookups, m.RetentionSwept)
	return m
}

func (m *Metrics) ObserveCapture(method string) {
	if m == nil {
		return
	}
	m.Captured.WithLabelValues(method).Inc()
}

func (m *Metrics) ObservePersistFailure() {
	if m == nil {
		return
	}
	m.PersistFailed.Inc()
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.Subscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.Subscribers.Dec()
}

func (m *Metrics) ObserveDrop() {
	if m == nil {
		return
	}
	m.DroppedEvents.Inc()
}

// ObserveGeo records a lookup outcome: local, cache_hit, resolved, failed or limited.
func (m *Metrics) ObserveGeo(result string) {
	if m == nil {
		return
	}
	m.GeoLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRetention(deleted int64) {
	if m == nil || deleted <= 0 {
		return
	}
	m.RetentionSwept.Add(float64(deleted))
}
