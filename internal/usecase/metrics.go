package usecase

import "github.com/prometheus/client_golang/prometheus"

var (
	metricDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_decisions_total", Help: "Decision ticks by outcome"},
		[]string{"outcome"},
	)
	metricNoTrade = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_no_trade_total", Help: "Skipped entries by reason"},
		[]string{"reason"},
	)
	metricOrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_orders_placed_total", Help: "Orders that passed protection verification"},
		[]string{"side"},
	)
	metricProtectionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_protection_failures_total", Help: "Orders closed because stop or target was not attached"},
		[]string{"kind"},
	)
	metricTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_lifecycle_transitions_total", Help: "Position lifecycle transitions applied"},
		[]string{"transition"},
	)
	metricLiveness = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_liveness_pings_total", Help: "Liveness pings by result"},
		[]string{"result"},
	)
	metricHalted = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "engine_halted", Help: "1 once the engine has halted after a protection failure"},
	)
	metricProfitToday = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "engine_profit_today", Help: "Realized plus projected profit for the trading day"},
	)
	metricDailyLossLimit = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "engine_daily_loss_limit", Help: "Maximum allowed loss for the trading day"},
	)
)

func init() {
	prometheus.MustRegister(
		metricDecisions, metricNoTrade, metricOrdersPlaced, metricProtectionFailures,
		metricTransitions, metricLiveness, metricHalted, metricProfitToday, metricDailyLossLimit,
	)
	metricHalted.Set(0)
}
