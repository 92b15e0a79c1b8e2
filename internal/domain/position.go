package domain

import "time"

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// OpenPosition is a read-only view of a live position owned by the host.
type OpenPosition struct {
	ID              string    `json:"id"`
	Label           string    `json:"label"`
	Symbol          string    `json:"symbol"`
	Side            Side      `json:"side"`
	EntryPrice      float64   `json:"entry_price"`
	StopLoss        *float64  `json:"stop_loss,omitempty"`
	TakeProfit      *float64  `json:"take_profit,omitempty"`
	Volume          float64   `json:"volume"`
	NetProfit       float64   `json:"net_profit"`
	HasTrailingStop bool      `json:"has_trailing_stop"`
	PipSize         float64   `json:"pip_size"`
	PipValue        float64   `json:"pip_value"`
	EntryTime       time.Time `json:"entry_time"`
}

// StopLossOutcome is the P&L the position books if its stop loss is hit.
// The second return value is false when the position has no stop.
func (p OpenPosition) StopLossOutcome() (float64, bool) {
	if p.StopLoss == nil || p.PipSize == 0 {
		return 0, false
	}
	pips := (*p.StopLoss - p.EntryPrice) / p.PipSize
	if p.Side == SideShort {
		pips = (p.EntryPrice - *p.StopLoss) / p.PipSize
	}
	return pips * p.Volume * p.PipValue, true
}

// OrderRequest is a market order with protective distances in pips.
type OrderRequest struct {
	ClientID       string   `json:"client_id"`
	Symbol         string   `json:"symbol"`
	Label          string   `json:"label"`
	Side           Side     `json:"side"`
	Volume         float64  `json:"volume"`
	StopLossPips   float64  `json:"stop_loss_pips"`
	TakeProfitPips *float64 `json:"take_profit_pips,omitempty"`
}

// PositionState is the lifecycle record the engine keeps for each of its open positions.
// Both flags only ever move from false to true while the position is open.
type PositionState struct {
	PositionID          string    `json:"position_id"`
	Label               string    `json:"label"`
	MovingStopActivated bool      `json:"moving_stop_activated"`
	EarlyProfitTaken    bool      `json:"early_profit_taken"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Merge folds other into s without ever clearing a flag.
func (s *PositionState) Merge(other PositionState) {
	s.MovingStopActivated = s.MovingStopActivated || other.MovingStopActivated
	s.EarlyProfitTaken = s.EarlyProfitTaken || other.EarlyProfitTaken
	if other.UpdatedAt.After(s.UpdatedAt) {
		s.UpdatedAt = other.UpdatedAt
	}
}
