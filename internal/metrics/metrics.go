package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorbell_calls_total",
			Help: "Call records written, by the status they were moved to.",
		},
		[]string{"status"},
	)

	AccessVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorbell_access_verdicts_total",
			Help: "PIN submissions, by verdict.",
		},
		[]string{"verdict"},
	)

	LockOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorbell_lock_operations_total",
			Help: "Lock vendor operations, by operation and result.",
		},
		[]string{"op", "result"},
	)

	SweptCallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doorbell_swept_calls_total",
			Help: "Stale ringing calls closed by the idle sweep.",
		},
	)
)

// MustRegister registers every collector with the default registry.
// Collectors work unregistered, so tests never call it.
func MustRegister() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		CallsTotal,
		AccessVerdictsTotal,
		LockOperationsTotal,
		SweptCallsTotal,
	)
}

// Result maps an error to the result label.
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
