package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics tracks the reactor-list cache.
type CacheMetrics struct {
	Lookups *prometheus.CounterVec
	Errors  *prometheus.CounterVec
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reactor_cache",
			Name:      "lookups_total",
			Help:      "Total number of reactor cache lookups, by result (hit, miss).",
		}, []string{"result"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reactor_cache",
			Name:      "errors_total",
			Help:      "Total number of reactor cache failures, by operation.",
		}, []string{"operation"}),
	}

	reg.MustRegister(m.Lookups, m.Errors)
	return m
}

func (m *CacheMetrics) Hit()  { m.Lookups.WithLabelValues("hit").Inc() }
func (m *CacheMetrics) Miss() { m.Lookups.WithLabelValues("miss").Inc() }

func (m *CacheMetrics) Failed(operation string) {
	m.Errors.WithLabelValues(operation).Inc()
}
