package metrics

import "github.com/prometheus/client_golang/prometheus"

// DiscordMetrics tracks REST traffic to Discord and the breaker guarding it.
type DiscordMetrics struct {
	Requests     *prometheus.CounterVec
	Retries      *prometheus.CounterVec
	BreakerState prometheus.Gauge
}

func NewDiscordMetrics(reg prometheus.Registerer) *DiscordMetrics {
	m := &DiscordMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discord",
			Name:      "requests_total",
			Help:      "Total number of Discord REST calls, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discord",
			Name:      "retries_total",
			Help:      "Total number of retried Discord REST calls, by operation.",
		}, []string{"operation"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "discord",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),
	}

	reg.MustRegister(m.Requests, m.Retries, m.BreakerState)
	return m
}
