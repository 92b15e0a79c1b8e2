package domain

import "time"

// AccountState is a read-only snapshot of the trading account.
type AccountState struct {
	Balance    float64 `json:"balance"`
	UsedMargin float64 `json:"used_margin"`
	Currency   string  `json:"currency"`
}

// RiskLimits are fixed for the lifetime of a run. All values are percentages (3.5 means 3.5%).
type RiskLimits struct {
	MaxRiskPct          float64 `json:"max_risk_pct" yaml:"max_risk_pct"`
	MaxDailyLossPct     float64 `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct"`
	MaxUsableBalancePct float64 `json:"max_usable_balance_pct" yaml:"max_usable_balance_pct"`
}

// UsableBalance is the part of the balance the engine may put at risk.
func (l RiskLimits) UsableBalance(acct AccountState) float64 {
	return acct.Balance * l.MaxUsableBalancePct / 100
}

// TradeRecord is a closed trade from the account history.
type TradeRecord struct {
	ID           string    `json:"id"`
	PositionID   string    `json:"position_id"`
	Label        string    `json:"label"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	Volume       float64   `json:"volume"`
	EntryPrice   float64   `json:"entry_price"`
	ClosingPrice float64   `json:"closing_price"`
	EntryTime    time.Time `json:"entry_time"`
	ClosingTime  time.Time `json:"closing_time"`
	NetProfit    float64   `json:"net_profit"`
}

type NoTradeReason string

const (
	ReasonNone                 NoTradeReason = ""
	ReasonDailyLossReached     NoTradeReason = "daily_loss_reached"
	ReasonInsufficientMargin   NoTradeReason = "insufficient_margin"
	ReasonStopTooWide          NoTradeReason = "stop_too_wide"
	ReasonInvalidStopDistance  NoTradeReason = "invalid_stop_distance"
	ReasonOutsideTradingWindow NoTradeReason = "outside_trading_window"
	ReasonNoSignal             NoTradeReason = "no_signal"
	ReasonUnsupportedCurrency  NoTradeReason = "unsupported_currency"
)

// SizingResult is either a tradable volume or a reason why there is no trade.
type SizingResult struct {
	Volume float64
	Reason NoTradeReason
}

// Tradable reports whether the result carries a valid volume.
func (r SizingResult) Tradable() bool {
	return r.Reason == ReasonNone && r.Volume > 0
}

// DecisionRecord is one journal row describing what the engine did on a decision tick.
type DecisionRecord struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Label    string    `json:"label"`
	Symbol   string    `json:"symbol"`
	Outcome  string    `json:"outcome"`
	Reason   string    `json:"reason"`
	Side     Side      `json:"side,omitempty"`
	Volume   float64   `json:"volume"`
	StopPips float64   `json:"stop_pips"`
	Detail   string    `json:"detail,omitempty"`
}

// Decision outcomes.
const (
	OutcomeOrderPlaced = "order_placed"
	OutcomeNoTrade     = "no_trade"
	OutcomeManaged     = "managed"
	OutcomeHalted      = "halted"
)

type ConversionMode string

const (
	// ConversionFloor is used when the quote asset is the account currency.
	ConversionFloor ConversionMode = "floor"
	// ConversionCross divides by the ask of a cross pair such as USDSEK.
	ConversionCross ConversionMode = "cross"
)

// QuoteConversion tells the sizer how to turn an amount of quote currency into volume.
type QuoteConversion struct {
	Mode ConversionMode `json:"mode" yaml:"mode"`
	Pair string         `json:"pair,omitempty" yaml:"pair,omitempty"`
}
