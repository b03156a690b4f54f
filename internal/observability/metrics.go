package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce              sync.Once
	httpRequestsTotal         *prometheus.CounterVec
	httpLatencySeconds        *prometheus.HistogramVec
	httpErrorsTotal           *prometheus.CounterVec
	evaluationsTotal          *prometheus.CounterVec
	paymentIntentsTotal       *prometheus.CounterVec
	paymentVerificationsTotal *prometheus.CounterVec
	paymentLogFailuresTotal   prometheus.Counter
)

// Outcome labels shared by the domain counters.
const (
	OutcomeSuccess           = "success"
	OutcomeEvaluationFailure = "evaluation_failure"
	OutcomePersistence       = "persistence_failure"
	OutcomeProcessorFailure  = "processor_failure"
	OutcomeUnlocked          = "unlocked"
	OutcomeReplayed          = "replayed"
	OutcomeRejected          = "rejected"
	OutcomeForbidden         = "forbidden"
	OutcomeNotFound          = "not_found"
	OutcomeError             = "error"
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codegrade",
			Name:      "http_requests_total",
			Help:      "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "codegrade",
			Name:      "http_latency_seconds",
			Help:      "Latency distribution for API requests.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5, 15, 30, 60},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codegrade",
			Name:      "http_errors_total",
			Help:      "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		evaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codegrade",
			Name:      "evaluations_total",
			Help:      "Task submissions by outcome.",
		}, []string{"outcome"})

		paymentIntentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codegrade",
			Name:      "payment_intents_total",
			Help:      "Payment intents by outcome.",
		}, []string{"outcome"})

		paymentVerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codegrade",
			Name:      "payment_verifications_total",
			Help:      "Payment verification attempts by outcome.",
		}, []string{"outcome"})

		paymentLogFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codegrade",
			Name:      "payment_log_failures_total",
			Help:      "Payment audit records that could not be written.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			evaluationsTotal,
			paymentIntentsTotal,
			paymentVerificationsTotal,
			paymentLogFailuresTotal,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the error response counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// Evaluations exposes the submission outcome counter.
func Evaluations() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationsTotal
}

// PaymentIntents exposes the payment intent outcome counter.
func PaymentIntents() *prometheus.CounterVec {
	RegisterMetrics()
	return paymentIntentsTotal
}

// PaymentVerifications exposes the verification outcome counter.
func PaymentVerifications() *prometheus.CounterVec {
	RegisterMetrics()
	return paymentVerificationsTotal
}

// PaymentLogFailures exposes the counter of lost payment audit writes.
func PaymentLogFailures() prometheus.Counter {
	RegisterMetrics()
	return paymentLogFailuresTotal
}
