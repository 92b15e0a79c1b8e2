package usecase

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/trade_lifecycle/internal/domain"
)

// DailyLossReport carries the numbers behind a circuit-breaker decision so callers can log them.
type DailyLossReport struct {
	Reached         bool    `json:"reached"`
	RealizedToday   float64 `json:"realized_today"`
	ProjectedOpen   float64 `json:"projected_open"`
	ProfitToday     float64 `json:"profit_today"`
	StartingBalance float64 `json:"starting_balance"`
	MaxLoss         float64 `json:"max_loss"`
	TradesToday     int     `json:"trades_today"`
	ProjectedCount  int     `json:"projected_count"`
}

// RiskGate is the daily-loss circuit breaker. It is a pure query over account snapshots.
type RiskGate struct {
	day                  TradingDay
	projectOpenPositions bool
}

func NewRiskGate(day TradingDay, projectOpenPositions bool) *RiskGate {
	return &RiskGate{day: day, projectOpenPositions: projectOpenPositions}
}

// TradesToday filters history down to trades entered on the trading day containing now.
func (g *RiskGate) TradesToday(now time.Time, history []domain.TradeRecord) []domain.TradeRecord {
	var today []domain.TradeRecord
	for _, t := range history {
		if g.day.Same(t.EntryTime, now) {
			today = append(today, t)
		}
	}
	return today
}

// Evaluate computes today's realized profit, adds the stop-out outcome of every protected open
// position, and compares the sum with the allowed daily loss.
func (g *RiskGate) Evaluate(
	now time.Time,
	limits domain.RiskLimits,
	acct domain.AccountState,
	history []domain.TradeRecord,
	positions []domain.OpenPosition,
) DailyLossReport {
	today := g.TradesToday(now, history)

	realized := decimal.Zero
	for _, t := range today {
		realized = realized.Add(decimal.NewFromFloat(t.NetProfit))
	}

	projected := decimal.Zero
	projectedCount := 0
	if g.projectOpenPositions {
		for _, p := range positions {
			// Positions without a stop are managed outside the engine.
			outcome, ok := p.StopLossOutcome()
			if !ok {
				continue
			}
			projected = projected.Add(decimal.NewFromFloat(outcome))
			projectedCount++
		}
	}

	profit := realized.Add(projected)
	usable := decimal.NewFromFloat(limits.UsableBalance(acct))
	starting := usable.Sub(profit)
	maxLoss := starting.Mul(decimal.NewFromFloat(limits.MaxDailyLossPct)).Div(decimal.NewFromInt(100))

	return DailyLossReport{
		Reached:         profit.LessThan(maxLoss.Neg()),
		RealizedToday:   realized.InexactFloat64(),
		ProjectedOpen:   projected.InexactFloat64(),
		ProfitToday:     profit.InexactFloat64(),
		StartingBalance: starting.InexactFloat64(),
		MaxLoss:         maxLoss.InexactFloat64(),
		TradesToday:     len(today),
		ProjectedCount:  projectedCount,
	}
}

// HasDailyLossLimitBeenReached is Evaluate reduced to its verdict.
func (g *RiskGate) HasDailyLossLimitBeenReached(
	now time.Time,
	limits domain.RiskLimits,
	acct domain.AccountState,
	history []domain.TradeRecord,
	positions []domain.OpenPosition,
) bool {
	return g.Evaluate(now, limits, acct, history, positions).Reached
}
