package authapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the auth counters exported on /metrics. A nil *Metrics is a no-op.
type Metrics struct {
	outcomes     *prometheus.CounterVec
	limited      *prometheus.CounterVec
	passwordWait prometheus.Histogram
}

// NewMetrics creates and registers the auth collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livesupport",
			Subsystem: "auth",
			Name:      "requests_total",
			Help:      "Auth operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		limited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livesupport",
			Subsystem: "auth",
			Name:      "rate_limited_total",
			Help:      "Login attempts rejected by the rate limiter, by key scope.",
		}, []string{"scope"}),
		passwordWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "livesupport",
			Subsystem: "password",
			Name:      "pool_wait_seconds",
			Help:      "Time spent waiting for a password hashing slot.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		}),
	}
	reg.MustRegister(m.outcomes, m.limited, m.passwordWait)
	return m
}

func (m *Metrics) outcome(op, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) rateLimited(scope string) {
	if m == nil {
		return
	}
	m.limited.WithLabelValues(scope).Inc()
}

// ObservePasswordWait fits password.Pool.OnWait.
func (m *Metrics) ObservePasswordWait(d time.Duration) {
	if m == nil {
		return
	}
	m.passwordWait.Observe(d.Seconds())
}
