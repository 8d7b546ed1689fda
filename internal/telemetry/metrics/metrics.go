// Package metrics holds the Prometheus counters for authentication outcomes.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"credential-authority/internal/platform/apperr"
)

var (
	authOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Authentication engine operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	otpChallenges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_challenges_total",
			Help: "OTP challenges started and completed, by purpose and outcome.",
		},
		[]string{"purpose", "outcome"},
	)

	directoryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_directory_attempts_total",
			Help: "Remote directory call attempts by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_grpc_request_duration_seconds",
			Help:    "gRPC request latency by method and status code.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "code"},
	)

	registerOnce sync.Once
)

// Init registers the counters with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(authOperations, otpChallenges, directoryAttempts, rpcDuration)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Outcome labels err: "ok" for nil, otherwise its error kind.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.KindOf(err).String()
}

// ObserveAuth counts one engine operation.
func ObserveAuth(operation string, err error) {
	authOperations.WithLabelValues(operation, Outcome(err)).Inc()
}

// ObserveChallenge counts one OTP challenge event.
func ObserveChallenge(purpose, outcome string) {
	otpChallenges.WithLabelValues(purpose, outcome).Inc()
}

// ObserveDirectoryAttempt counts one remote directory attempt.
func ObserveDirectoryAttempt(method, outcome string) {
	directoryAttempts.WithLabelValues(method, outcome).Inc()
}

// ObserveRPC records one served gRPC request.
func ObserveRPC(method, code string, d time.Duration) {
	rpcDuration.WithLabelValues(method, code).Observe(d.Seconds())
}
