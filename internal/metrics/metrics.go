// Package metrics exposes the bridge's Prometheus collectors on a private
// registry so repeated construction in tests never collides.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	EventsReceived  *prometheus.CounterVec
	EventsProcessed *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	EventRetries    *prometheus.CounterVec
	DeadLetters     prometheus.Counter
	ProviderSends   *prometheus.CounterVec
	TokenRefreshes  *prometheus.CounterVec
	SessionsCleaned prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_events_received_total",
			Help: "Inbound webhook events by platform and ingest outcome",
		}, []string{"platform", "outcome"}),
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_events_processed_total",
			Help: "Pipeline runs by terminal status",
		}, []string{"status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_stage_duration_seconds",
			Help:    "Wall-clock time spent per pipeline stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		EventRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_event_retries_total",
			Help: "Events released back to pending, by failing stage",
		}, []string{"stage"}),
		DeadLetters: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_dead_letters_total",
			Help: "Events parked in the dead-letter sink",
		}),
		ProviderSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_provider_sends_total",
			Help: "Outbound provider deliveries by platform and outcome",
		}, []string{"platform", "outcome"}),
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_token_refreshes_total",
			Help: "Credential refresh attempts by outcome",
		}, []string{"status"}),
		SessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_sessions_cleaned_total",
			Help: "Expired sessions removed by the cleanup sweep",
		}),
	}
	m.Registry.MustRegister(
		m.EventsReceived,
		m.EventsProcessed,
		m.StageDuration,
		m.EventRetries,
		m.DeadLetters,
		m.ProviderSends,
		m.TokenRefreshes,
		m.SessionsCleaned,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
