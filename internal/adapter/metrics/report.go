package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReportMetrics covers the ranking pipeline: one observation per report run.
type ReportMetrics struct {
	ReportsTotal    *prometheus.CounterVec
	Duration        prometheus.Histogram
	MessagesScanned prometheus.Counter
	ChannelsSkipped *prometheus.CounterVec
	EmojisRanked    prometheus.Histogram
	DedupedRequests prometheus.Counter
}

func NewReportMetrics(reg prometheus.Registerer) *ReportMetrics {
	m := &ReportMetrics{
		ReportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "generated_total",
			Help:      "Total number of ranking reports, by source and result.",
		}, []string{"source", "result"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "duration_seconds",
			Help:      "Wall time to build a ranking report.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		MessagesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "messages_scanned_total",
			Help:      "Total number of messages inspected by the counting pass.",
		}),
		ChannelsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "channels_skipped_total",
			Help:      "Total number of channels left out of a report, by reason.",
		}, []string{"reason"}),
		EmojisRanked: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "catalog_size",
			Help:      "Number of custom emojis in the catalog of each report.",
			Buckets:   []float64{0, 10, 25, 50, 100, 250, 500},
		}),
		DedupedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "deduplicated_total",
			Help:      "Total number of report requests served from an identical in-flight run.",
		}),
	}

	reg.MustRegister(m.ReportsTotal, m.Duration, m.MessagesScanned, m.ChannelsSkipped, m.EmojisRanked, m.DedupedRequests)
	return m
}

// Observe records the outcome of one report run.
func (m *ReportMetrics) Observe(source, result string, elapsed time.Duration) {
	m.ReportsTotal.WithLabelValues(source, result).Inc()
	m.Duration.Observe(elapsed.Seconds())
}
