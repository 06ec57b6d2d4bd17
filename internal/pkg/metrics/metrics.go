package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transaction outcome labels.
const (
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
	StatusOK        = "ok"
)

// Metrics holds the Prometheus collectors of the bridge.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	transactionsTotal    *prometheus.CounterVec
	confirmationDuration *prometheus.HistogramVec
	balanceRefreshTotal  *prometheus.CounterVec
	connectionState      *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		transactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atm_transactions_total",
				Help: "Total number of ATM transactions by action and outcome",
			},
			[]string{"action", "status"},
		),
		confirmationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "atm_transaction_confirmation_seconds",
				Help:    "Time from submission to confirmation of ATM transactions",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"action"},
		),
		balanceRefreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atm_balance_refresh_total",
				Help: "Total number of balance refreshes by outcome",
			},
			[]string{"status"},
		),
		connectionState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "atm_connection_state",
				Help: "Current wallet connection state (1 for the active state)",
			},
			[]string{"state"},
		),
	}
}

// RecordTransaction records the outcome of one mutating call.
func (m *Metrics) RecordTransaction(action, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transactionsTotal.WithLabelValues(action, status).Inc()
	if status == StatusConfirmed {
		m.confirmationDuration.WithLabelValues(action).Observe(elapsed.Seconds())
	}
}

// RecordRefresh records a balance refresh.
func (m *Metrics) RecordRefresh(status string) {
	if m == nil {
		return
	}
	m.balanceRefreshTotal.WithLabelValues(status).Inc()
}

// SetConnectionState marks state as the active one among states.
func (m *Metrics) SetConnectionState(state string, states ...string) {
	if m == nil {
		return
	}
	for _, s := range states {
		m.connectionState.WithLabelValues(s).Set(0)
	}
	m.connectionState.WithLabelValues(state).Set(1)
}
