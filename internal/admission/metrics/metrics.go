package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RateLimitDecisionsTotal   *prometheus.CounterVec
	QuotaConsumeTotal         *prometheus.CounterVec
	QuotaConsumeConflictTotal prometheus.Counter
	QuotaConsumeDuration      prometheus.Histogram
	QuotaTokensConsumedTotal  *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		RateLimitDecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auditgate_ratelimit_decisions_total",
			Help: "Rate limit check outcomes by preset and decision",
		}, []string{"preset", "decision"}),
		QuotaConsumeTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auditgate_quota_consume_total",
			Help: "Token consumption attempts by operation and outcome",
		}, []string{"operation", "outcome"}),
		QuotaConsumeConflictTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auditgate_quota_consume_conflicts_total",
			Help: "Optimistic-concurrency conflicts retried during token consumption",
		}),
		QuotaConsumeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "auditgate_quota_consume_duration_seconds",
			Help: "Duration of token consumption including retries",
		}),
		QuotaTokensConsumedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auditgate_quota_tokens_consumed_total",
			Help: "Tokens successfully consumed by operation",
		}, []string{"operation"}),
	}
}

func (m *Metrics) RecordRateLimitDecision(preset string, allowed bool) {
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	m.RateLimitDecisionsTotal.WithLabelValues(preset, decision).Inc()
}

func (m *Metrics) RecordConsume(operation, outcome string) {
	m.QuotaConsumeTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) RecordConsumeConflict() {
	m.QuotaConsumeConflictTotal.Inc()
}

func (m *Metrics) ObserveConsumeDuration(seconds float64) {
	m.QuotaConsumeDuration.Observe(seconds)
}

func (m *Metrics) RecordTokensConsumed(operation string, tokens int) {
	m.QuotaTokensConsumedTotal.WithLabelValues(operation).Add(float64(tokens))
}
