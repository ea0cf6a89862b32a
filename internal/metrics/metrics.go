package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the dashboard's Prometheus collectors
type Metrics struct {
	AttackModeActive   prometheus.Gauge
	FeedMessages       *prometheus.CounterVec // result: accepted, malformed
	FeedConnections    *prometheus.CounterVec // result: opened, failed, closed
	AlertsExpired      prometheus.Counter
	AlertsEvicted      prometheus.Counter
	TrafficSamples     prometheus.Counter
	PollErrors         *prometheus.CounterVec
	TrainingJobs       *prometheus.CounterVec
	DashboardWSClients prometheus.Gauge
}

// New registers all collectors on reg. Pass a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AttackModeActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_attack_mode_active",
			Help: "1 while the attack simulation is active",
		}),
		FeedMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_feed_messages_total",
			Help: "Live feed messages by parse result",
		}, []string{"result"}),
		FeedConnections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_feed_connections_total",
			Help: "Live feed connection lifecycle events",
		}, []string{"result"}),
		AlertsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_alerts_expired_total",
			Help: "Alerts removed from the live buffer by the display timer",
		}),
		AlertsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_alerts_evicted_total",
			Help: "Alerts removed from the live buffer on capacity overflow",
		}),
		TrafficSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_traffic_samples_total",
			Help: "Synthetic traffic samples generated while under attack",
		}),
		PollErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_poll_errors_total",
			Help: "Failed panel refreshes",
		}, []string{"panel"}),
		TrainingJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_training_jobs_total",
			Help: "Retraining jobs by final status",
		}, []string{"status"}),
		DashboardWSClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_ws_clients",
			Help: "Connected dashboard websocket clients",
		}),
	}
}

// NewNop returns metrics bound to a throwaway registry
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
