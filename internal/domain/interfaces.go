package domain

import "context"

// AccountProvider exposes the host's account and market snapshots.
type AccountProvider interface {
	Account(ctx context.Context) (AccountState, error)
	Symbol(ctx context.Context, name string) (SymbolInfo, error)
	Positions(ctx context.Context) ([]OpenPosition, error)
	History(ctx context.Context) ([]TradeRecord, error)
	// CrossRate returns the ask price of a currency pair such as "USDSEK".
	CrossRate(ctx context.Context, pair string) (float64, error)
	MarketOpen(ctx context.Context) (bool, error)
}

// ExecutionSurface places and mutates orders on the host.
type ExecutionSurface interface {
	ExecuteMarketOrder(ctx context.Context, req OrderRequest) (*OpenPosition, error)
	ModifyStopLoss(ctx context.Context, positionID string, price float64) error
	ModifyVolume(ctx context.Context, positionID string, volume float64) error
	SetTrailingStop(ctx context.Context, positionID string, enabled bool) error
	ClosePosition(ctx context.Context, positionID string) error
}

// PositionStateStore persists lifecycle state keyed by position id.
// GetPositionState returns ErrNotFound when nothing is stored.
type PositionStateStore interface {
	GetPositionState(ctx context.Context, positionID string) (*PositionState, error)
	SavePositionState(ctx context.Context, state *PositionState) error
	DeletePositionState(ctx context.Context, positionID string) error
	ListPositionStates(ctx context.Context) ([]*PositionState, error)
}

// DecisionJournal records decisions and closed trades.
type DecisionJournal interface {
	SaveDecision(ctx context.Context, rec *DecisionRecord) error
	ListDecisions(ctx context.Context, limit int) ([]*DecisionRecord, error)
	SaveTrade(ctx context.Context, trade *TradeRecord) error
	ListTrades(ctx context.Context, limit int) ([]*TradeRecord, error)
}

// LivenessSink receives best-effort health pings.
type LivenessSink interface {
	Ping(ctx context.Context) error
}
