package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zhouzirui/janvani/backend/internal/errs"
)

var (
	once sync.Once

	// ProviderRequestsTotal counts outbound provider calls by outcome.
	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "janvani",
		Name:      "provider_requests_total",
		Help:      "Total number of outbound provider calls, labeled by provider, operation and outcome.",
	}, []string{"provider", "operation", "outcome"})

	// ProviderRequestDurationSeconds is wall time per outbound provider call.
	ProviderRequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "janvani",
		Name:      "provider_request_duration_seconds",
		Help:      "Latency of outbound provider calls.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"provider", "operation"})

	// ChatTurnsTotal counts orchestrated chat turns by user language and outcome.
	ChatTurnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "janvani",
		Name:      "chat_turns_total",
		Help:      "Total number of chat turns handled, labeled by user language and outcome.",
	}, []string{"language", "outcome"})
)

// Register registers the service metrics with the default Prometheus registry.
// activeSessions, when non-nil, backs the janvani_active_sessions gauge.
// Safe to call multiple times.
func Register(activeSessions func() float64) {
	once.Do(func() {
		prometheus.MustRegister(
			ProviderRequestsTotal,
			ProviderRequestDurationSeconds,
			ChatTurnsTotal,
		)
		if activeSessions != nil {
			prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "janvani",
				Name:      "active_sessions",
				Help:      "Number of conversation sessions currently held in memory.",
			}, activeSessions))
		}
	})
}

// ObserveProvider records one provider call started at start.
func ObserveProvider(provider, operation string, start time.Time, err error) {
	ProviderRequestDurationSeconds.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
	ProviderRequestsTotal.WithLabelValues(provider, operation, Outcome(err)).Inc()
}

// Outcome 把错误归一为低基数的标签值。
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := errs.KindOf(err); kind != errs.KindUnknown {
		return string(kind)
	}
	return "error"
}
