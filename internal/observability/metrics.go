package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's prometheus collectors.
type Metrics struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	notifications *prometheus.CounterVec
	sweeps        *prometheus.CounterVec
	sweepTickets  *prometheus.CounterVec
}

// NewMetrics registers collectors on reg. A nil registerer uses the default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_requests_total",
			Help: "Total number of HTTP requests processed",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helpdesk_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_errors_total",
			Help: "HTTP requests that ended in a domain error",
		}, []string{"method", "route", "code"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_notifications_total",
			Help: "Notification delivery attempts by kind and result",
		}, []string{"kind", "result"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_overdue_sweeps_total",
			Help: "Overdue sweep executions by result",
		}, []string{"result"}),
		sweepTickets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_overdue_tickets_total",
			Help: "Overdue tickets handled by the sweep, by outcome",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.requests, m.latency, m.errors, m.notifications, m.sweeps, m.sweepTickets)
	return m
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, route, code).Inc()
}

// RecordNotification counts one delivery attempt.
func (m *Metrics) RecordNotification(kind string, success bool) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, resultLabel(success)).Inc()
}

// RecordSweep counts one sweep run and its per-ticket outcomes.
func (m *Metrics) RecordSweep(success bool, dispatched, failed, skipped int) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(resultLabel(success)).Inc()
	m.sweepTickets.WithLabelValues("dispatched").Add(float64(dispatched))
	m.sweepTickets.WithLabelValues("failed").Add(float64(failed))
	m.sweepTickets.WithLabelValues("skipped").Add(float64(skipped))
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
