// Package metrics exposes Prometheus collectors for the relay.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cargo-relay/internal/tracking"
)

// Metrics groups the relay's collectors
type Metrics struct {
	TrackingTotal    *prometheus.CounterVec
	TrackingDuration *prometheus.HistogramVec
	WebhookMessages  *prometheus.CounterVec
	RepliesTotal     *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers and returns the relay collectors. A nil registry selects the
// default Prometheus registry.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer = reg
		gatherer = reg
	}

	m := &Metrics{
		TrackingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracking_requests_total",
			Help:      "Tracking lookups by outcome and source.",
		}, []string{"kind", "source"}),
		TrackingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tracking_duration_ms",
			Help:      "Tracking lookup latency in milliseconds.",
			Buckets:   []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"source"}),
		WebhookMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_messages_total",
			Help:      "Inbound webhook messages by type and handling result.",
		}, []string{"type", "result"}),
		RepliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Outbound messages by trigger and delivery result.",
		}, []string{"trigger", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the server.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency distribution in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"method", "route"}),
		gatherer: gatherer,
	}

	mustRegister(registerer, &m.TrackingTotal)
	mustRegister(registerer, &m.WebhookMessages)
	mustRegister(registerer, &m.RepliesTotal)
	mustRegister(registerer, &m.HTTPRequests)
	mustRegisterHistogram(registerer, &m.TrackingDuration)
	mustRegisterHistogram(registerer, &m.HTTPDuration)
	return m
}

// ObserveTracking records one tracking lookup
func (m *Metrics) ObserveTracking(kind tracking.Kind, cached bool, elapsed time.Duration) {
	source := "provider"
	if cached {
		source = "cache"
	}
	m.TrackingTotal.WithLabelValues(string(kind), source).Inc()
	m.TrackingDuration.WithLabelValues(source).Observe(DurationMillis(elapsed))
}

// ObserveWebhookMessage records one inbound message
func (m *Metrics) ObserveWebhookMessage(messageType, result string) {
	m.WebhookMessages.WithLabelValues(messageType, result).Inc()
}

// ObserveReply records one outbound message attempt
func (m *Metrics) ObserveReply(trigger string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.RepliesTotal.WithLabelValues(trigger, result).Inc()
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, fmt.Sprint(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(DurationMillis(elapsed))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// DurationMillis converts a duration to milliseconds for metric observation
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func mustRegister(reg prometheus.Registerer, counter **prometheus.CounterVec) {
	if err := reg.Register(*counter); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(fmt.Errorf("register counter: %w", err))
		}
		if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
			*counter = existing
		}
	}
}

func mustRegisterHistogram(reg prometheus.Registerer, histo **prometheus.HistogramVec) {
	if err := reg.Register(*histo); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(fmt.Errorf("register histogram: %w", err))
		}
		if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
			*histo = existing
		}
	}
}
