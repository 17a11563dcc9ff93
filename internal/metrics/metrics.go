// Package metrics declares the Prometheus collectors shared by the engine.
// Collectors register with the default registry at init and are served by
// promhttp at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_events_handled_total",
		Help: "Lifecycle events processed, by trigger and result (handled, declined).",
	}, []string{"trigger", "result"})

	RulesSelected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_rules_selected_total",
		Help: "Rules that matched and acquired their cooldown.",
	}, []string{"agent_type"})

	CooldownDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_cooldown_denied_total",
		Help: "Matching rules suppressed by an active cooldown.",
	}, []string{"agent_type"})

	RenderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_render_failures_total",
		Help: "Dispatch plans skipped because rendering failed, by reason.",
	}, []string{"reason"})

	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_dispatch_total",
		Help: "Channel hand-offs by channel and resulting status.",
	}, []string{"channel", "status"})

	DispatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notify_dispatch_duration_seconds",
		Help:    "Channel adapter hand-off latency.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"channel"})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_delivery_transitions_total",
		Help: "Delivery status updates by target status and outcome (applied, duplicate, anomalous).",
	}, []string{"status", "outcome"})

	CatalogRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_catalog_refresh_total",
		Help: "Rule catalog refresh attempts by result.",
	}, []string{"result"})

	CatalogRules = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notify_catalog_rules",
		Help: "Active rules in the current catalog snapshot.",
	})

	CatalogExcluded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notify_catalog_excluded_rules",
		Help: "Rules excluded from the current snapshot as misconfigured.",
	})

	IngestMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_ingest_messages_total",
		Help: "Messages consumed from event and callback queues, by source and result.",
	}, []string{"source", "result"})

	AnalyticsExports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_analytics_exports_total",
		Help: "Daily analytics export runs, by result (exported, skipped, failed).",
	}, []string{"result"})
)
