// Package metrics содержит прометеевские метрики платежного шлюза.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Метрики проверки транзакций
	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_verifications_total",
			Help: "Total number of ledger transaction verifications by outcome",
		},
		[]string{"outcome"},
	)
	VerificationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "gateway_verification_duration_seconds",
			Help: "Duration of ledger transaction verifications in seconds",
		},
	)

	// Метрики цикла сверки
	PollTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_poll_ticks_total",
			Help: "Total number of reconciler polling ticks",
		},
	)
	PollSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_poll_sessions_total",
			Help: "Total number of reconciler sessions by result",
		},
		[]string{"result"},
	)

	// Метрики клиента реестра
	LedgerRPCErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_ledger_rpc_errors_total",
			Help: "Total number of transient ledger RPC failures",
		},
	)

	// Метрики подписок
	ActivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_subscription_activations_total",
			Help: "Total number of subscription activations by tier",
		},
		[]string{"tier"},
	)
)

// InitMetrics регистрирует метрики в реестре прометея по умолчанию.
func InitMetrics() {
	prometheus.MustRegister(VerificationsTotal)
	prometheus.MustRegister(VerificationDuration)
	prometheus.MustRegister(PollTicksTotal)
	prometheus.MustRegister(PollSessionsTotal)
	prometheus.MustRegister(LedgerRPCErrorsTotal)
	prometheus.MustRegister(ActivationsTotal)
}
