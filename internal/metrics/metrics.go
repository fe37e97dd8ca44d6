package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the session client and the
// reference backend. A nil *Metrics records nothing.
type Metrics struct {
	// Session client
	RefreshAttempts  *prometheus.CounterVec
	RefreshDuration  prometheus.Histogram
	QueuedRequests   prometheus.Counter
	ReplayedRequests *prometheus.CounterVec
	SessionLost      *prometheus.CounterVec

	// Reference backend
	AuthRequests   *prometheus.CounterVec
	HubConnections prometheus.Gauge
	HubMessages    *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered with registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		RefreshAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "match_client_refresh_total",
				Help: "Token refresh calls by outcome",
			},
			[]string{"outcome"},
		),
		RefreshDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "match_client_refresh_duration_seconds",
				Help:    "Duration of token refresh calls",
				Buckets: prometheus.DefBuckets,
			},
		),
		QueuedRequests: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "match_client_queued_requests_total",
				Help: "Requests suspended while a refresh was in flight",
			},
		),
		ReplayedRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "match_client_replayed_requests_total",
				Help: "Requests retried after a 401 by reason",
			},
			[]string{"reason"},
		),
		SessionLost: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "match_client_session_lost_total",
				Help: "Forced logouts by reason",
			},
			[]string{"reason"},
		),
		AuthRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "match_api_auth_requests_total",
				Help: "Authentication endpoint calls by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		HubConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "match_hub_connections",
				Help: "Open storage sync connections",
			},
		),
		HubMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "match_hub_messages_total",
				Help: "Storage sync messages by direction",
			},
			[]string{"direction"},
		),
	}
}

// NewRegistry creates a registry with all collectors registered
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, NewMetrics(reg)
}

// HandlerFor returns an HTTP handler exposing a registry
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRefresh(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RefreshAttempts.WithLabelValues(outcome).Inc()
	m.RefreshDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordQueued() {
	if m == nil {
		return
	}
	m.QueuedRequests.Inc()
}

func (m *Metrics) RecordReplay(reason string) {
	if m == nil {
		return
	}
	m.ReplayedRequests.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordSessionLost(reason string) {
	if m == nil {
		return
	}
	m.SessionLost.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordAuth(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.AuthRequests.WithLabelValues(endpoint, outcome).Inc()
}

// HubConnected adjusts the open connection gauge by delta
func (m *Metrics) HubConnected(delta int) {
	if m == nil {
		return
	}
	m.HubConnections.Add(float64(delta))
}

func (m *Metrics) RecordHubMessage(direction string) {
	if m == nil {
		return
	}
	m.HubMessages.WithLabelValues(direction).Inc()
}
