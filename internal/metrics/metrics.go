package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "filingstack"

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	MessagesProcessed *prometheus.CounterVec
	MessagesFetched   *prometheus.CounterVec
	DocumentsFiled    *prometheus.CounterVec
	SourceFailures    *prometheus.CounterVec
	ArchiveFailures   prometheus.Counter
	TicksSkipped      prometheus.Counter
	TickDuration      prometheus.Histogram
	FilingDuration    prometheus.Histogram
	WatermarkLag      *prometheus.GaugeVec
}

// NewMetrics registers the collectors on reg. A nil reg uses the default
// registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		MessagesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Messages that reached a terminal state, by status",
		}, []string{"status"}),
		MessagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_fetched_total",
			Help:      "Messages listed from mailboxes, by source type",
		}, []string{"source"}),
		DocumentsFiled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_filed_total",
			Help:      "Documents inserted into IMS, by kind",
		}, []string{"kind"}),
		SourceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Mailbox sources whose batch was aborted",
		}, []string{"source"}),
		ArchiveFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_failures_total",
			Help:      "Filed documents that could not be copied to the archive",
		}),
		TicksSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_skipped_total",
			Help:      "Ticks skipped because a pass was already running",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one processing pass",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		FilingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "filing_duration_seconds",
			Help:      "Time spent filing one message to IMS",
			Buckets:   prometheus.DefBuckets,
		}),
		WatermarkLag: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watermark_lag_seconds",
			Help:      "Age of the watermark after the last pass, by mailbox",
		}, []string{"mailbox"}),
	}
}
