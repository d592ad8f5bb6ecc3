package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eduhub",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eduhub",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	enrollments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eduhub",
			Subsystem: "enrollment",
			Name:      "attempts_total",
			Help:      "Enrollment creation attempts by outcome (created or business error code).",
		},
		[]string{"outcome"},
	)

	paymentTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eduhub",
			Subsystem: "payment",
			Name:      "transitions_total",
			Help:      "Payment status updates by source and result.",
		},
		[]string{"source", "to", "result"},
	)

	webhooks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eduhub",
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Inbound provider callbacks by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	gatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eduhub",
			Subsystem: "gateway",
			Name:      "call_duration_seconds",
			Help:      "Duration of invoice gateway calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 11), // 10ms to ~10s
		},
		[]string{"op", "success"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		enrollments,
		paymentTransitions,
		webhooks,
		gatewayDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordHTTP(method, path string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func RecordEnrollment(outcome string) {
	enrollments.WithLabelValues(outcome).Inc()
}

func RecordPaymentTransition(source, to, result string) {
	paymentTransitions.WithLabelValues(source, to, result).Inc()
}

func RecordWebhook(source, outcome string) {
	webhooks.WithLabelValues(source, outcome).Inc()
}

func RecordGatewayCall(op string, success bool, d time.Duration) {
	gatewayDuration.WithLabelValues(op, strconv.FormatBool(success)).Observe(d.Seconds())
}
