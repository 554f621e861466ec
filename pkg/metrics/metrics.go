package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the collectors.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"

	OutcomeAccepted  = "accepted"
	OutcomeIgnored   = "ignored"
	OutcomeSucceeded = "succeeded"
)

// AnalyticsMetrics counts analytics events by name and delivery outcome.
type AnalyticsMetrics struct {
	events *prometheus.CounterVec
}

// NewAnalyticsMetrics registers the analytics collectors on the provided registerer.
func NewAnalyticsMetrics(reg prometheus.Registerer) *AnalyticsMetrics {
	if reg == nil {
		return &AnalyticsMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_events_total",
		Help: "Analytics events by name and delivery outcome.",
	}, []string{"event", "outcome"})
	reg.MustRegister(events)
	return &AnalyticsMetrics{events: events}
}

// Observe increments the counter for the event/outcome pair.
func (a *AnalyticsMetrics) Observe(event, outcome string) {
	if a == nil || a.events == nil {
		return
	}
	a.events.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
}

// ActionMetrics counts control clicks and their results.
type ActionMetrics struct {
	clicks *prometheus.CounterVec
}

// NewActionMetrics registers the control collectors on the provided registerer.
func NewActionMetrics(reg prometheus.Registerer) *ActionMetrics {
	if reg == nil {
		return &ActionMetrics{}
	}
	clicks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_control_clicks_total",
		Help: "Cart control clicks by control kind and outcome.",
	}, []string{"control", "outcome"})
	reg.MustRegister(clicks)
	return &ActionMetrics{clicks: clicks}
}

// Observe increments the counter for the control/outcome pair.
func (a *ActionMetrics) Observe(control, outcome string) {
	if a == nil || a.clicks == nil {
		return
	}
	a.clicks.WithLabelValues(normalizeLabel(control), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

// HTTPMetrics records request latency by route pattern.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the HTTP collectors on the provided registerer.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route, method and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
	reg.MustRegister(duration)
	return &HTTPMetrics{duration: duration}
}

// Observe records one request.
func (h *HTTPMetrics) Observe(route, method string, status int, seconds float64) {
	if h == nil || h.duration == nil {
		return
	}
	h.duration.WithLabelValues(normalizeLabel(route), normalizeLabel(method), strconv.Itoa(status)).Observe(seconds)
}
