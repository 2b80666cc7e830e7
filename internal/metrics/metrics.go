// Package metrics provides Prometheus instrumentation for the chat and
// moderation services. It exposes counters for message and sanction
// throughput, report workflow activity, and histograms for classification
// latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesTotal counts processed messages, labeled by the moderation
	// action applied: "allow", "warn", or "block".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "youthguard_messages_total",
		Help: "Total number of messages processed, by moderation action",
	}, []string{"action"})

	// ClassifyDuration records content classification latency in seconds.
	ClassifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "youthguard_classify_duration_seconds",
		Help:    "Content classification latency in seconds",
		Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
	})

	// SanctionsTotal counts applied sanctions, labeled by action:
	// "strike", "restrict", "ban", "unban", "unrestrict", "reset_strikes".
	SanctionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "youthguard_sanctions_total",
		Help: "Total number of sanctions applied, by action",
	}, []string{"action"})

	// ReportsTotal counts filed reports, labeled by reason.
	ReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "youthguard_reports_total",
		Help: "Total number of reports filed, by reason",
	}, []string{"reason"})

	// ReportResolutionsTotal counts moderator resolutions, labeled by
	// decision: "warn", "restrict", "ban", "reject", "dismiss".
	ReportResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "youthguard_report_resolutions_total",
		Help: "Total number of report resolutions, by decision",
	}, []string{"decision"})

	// QueueDepth tracks the number of open moderation queue entries.
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "youthguard_moderation_queue_depth",
		Help: "Current number of open moderation queue entries",
	})
)

func init() {
	prometheus.MustRegister(
		MessagesTotal,
		ClassifyDuration,
		SanctionsTotal,
		ReportsTotal,
		ReportResolutionsTotal,
		QueueDepth,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
