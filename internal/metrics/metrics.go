// Package metrics defines the node's Prometheus collectors and registers
// them on a private registry, never the global default, so multiple
// nodes can run in the same test process without collector collisions.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector the node's components report to.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal *prometheus.CounterVec

	ApplyTotal *prometheus.CounterVec

	ReconcileDuration     prometheus.Histogram
	ReconcileCreatesTotal prometheus.Counter
	ReconcileRemovesTotal prometheus.Counter

	StatsSubscribers prometheus.Gauge

	SecretOpsTotal *prometheus.CounterVec
}

// New builds and registers every collector on a fresh private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rezn_http_requests_total",
				Help: "Count of HTTP requests handled, by route and status code.",
			},
			[]string{"route", "status"},
		),

		ApplyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rezn_apply_total",
				Help: "Count of apply attempts, by result.",
			},
			[]string{"result"},
		),

		ReconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "rezn_reconcile_duration_seconds",
			Help: "Duration of a full reconcile pass.",
		}),
		ReconcileCreatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rezn_reconcile_creates_total",
			Help: "Count of container create calls issued by the reconciler.",
		}),
		ReconcileRemovesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rezn_reconcile_removes_total",
			Help: "Count of container remove calls issued by the reconciler.",
		}),

		StatsSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rezn_stats_subscribers",
			Help: "Current count of subscribed stats WebSocket clients.",
		}),

		SecretOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rezn_secret_ops_total",
				Help: "Count of secret store operations, by op.",
			},
			[]string{"op"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.ApplyTotal,
		m.ReconcileDuration,
		m.ReconcileCreatesTotal,
		m.ReconcileRemovesTotal,
		m.StatsSubscribers,
		m.SecretOpsTotal,
	)

	return m
}
