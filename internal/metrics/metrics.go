// Package metrics defines the Prometheus collectors of the query gateway.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hue_gateway"

// Gateway holds the gateway's collectors. A nil *Gateway is valid and
// records nothing.
type Gateway struct {
	submitted        *prometheus.CounterVec
	submitFailures   *prometheus.CounterVec
	queryExpired     *prometheus.CounterVec
	sessionExpired   *prometheus.CounterVec
	waitTimeouts     *prometheus.CounterVec
	waitSeconds      *prometheus.HistogramVec
	historyRefreshed *prometheus.CounterVec
	livySessions     prometheus.Gauge
	pooledClients    prometheus.Gauge
}

// New creates the gateway collectors. They are not registered.
func New() *Gateway {
	return &Gateway{
		submitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "statements_submitted_total",
				Help:      "Total number of statements submitted to a query server",
			},
			[]string{"server"},
		),
		submitFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "statement_submit_failures_total",
				Help:      "Total number of statements the query server rejected on submission",
			},
			[]string{"server"},
		),
		queryExpired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_expired_total",
				Help:      "Total number of operations on query handles the server no longer knows",
			},
			[]string{"backend"},
		),
		sessionExpired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_expired_total",
				Help:      "Total number of operations on sessions the server no longer knows",
			},
			[]string{"backend"},
		),
		waitTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "execute_and_wait_timeouts_total",
				Help:      "Total number of synchronous executions abandoned at their deadline",
			},
			[]string{"server"},
		),
		waitSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execute_and_wait_seconds",
				Help:      "Latency of synchronous statement executions",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30, 60},
			},
			[]string{"server"},
		),
		historyRefreshed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_refreshed_total",
				Help:      "Total number of query history records refreshed, by resulting state",
			},
			[]string{"state"},
		),
		livySessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "livy_sessions",
				Help:      "Number of Spark sessions tracked by the gateway",
			},
		),
		pooledClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pooled_connections",
				Help:      "Number of open query server connections in the pool",
			},
		),
	}
}

// Register adds every collector to reg.
func (m *Gateway) Register(reg prometheus.Registerer) error {
	var errs []error
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Gateway) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.submitted, m.submitFailures, m.queryExpired, m.sessionExpired,
		m.waitTimeouts, m.waitSeconds, m.historyRefreshed, m.livySessions, m.pooledClients,
	}
}

// StatementSubmitted counts a submission; failed marks a rejected one.
func (m *Gateway) StatementSubmitted(server string, failed bool) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(server).Inc()
	if failed {
		m.submitFailures.WithLabelValues(server).Inc()
	}
}

// QueryExpired counts an operation on a stale handle.
func (m *Gateway) QueryExpired(backend string) {
	if m == nil {
		return
	}
	m.queryExpired.WithLabelValues(backend).Inc()
}

// SessionExpired counts an operation on a lost session.
func (m *Gateway) SessionExpired(backend string) {
	if m == nil {
		return
	}
	m.sessionExpired.WithLabelValues(backend).Inc()
}

// ExecuteAndWaitDone records a synchronous execution. timedOut marks one
// that hit its deadline.
func (m *Gateway) ExecuteAndWaitDone(server string, elapsed time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	m.waitSeconds.WithLabelValues(server).Observe(elapsed.Seconds())
	if timedOut {
		m.waitTimeouts.WithLabelValues(server).Inc()
	}
}

// HistoryRefreshed counts a history record moved to state.
func (m *Gateway) HistoryRefreshed(state string) {
	if m == nil {
		return
	}
	m.historyRefreshed.WithLabelValues(state).Inc()
}

// SetLivySessions reports the number of tracked Spark sessions.
func (m *Gateway) SetLivySessions(n int) {
	if m == nil {
		return
	}
	m.livySessions.Set(float64(n))
}

// SetPooledConnections reports the number of pooled connections.
func (m *Gateway) SetPooledConnections(n int) {
	if m == nil {
		return
	}
	m.pooledClients.Set(float64(n))
}
