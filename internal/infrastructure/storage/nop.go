package storage

import (
	"context"

	"github.com/vitos/trade_lifecycle/internal/domain"
)

// NopStore satisfies the store interfaces without keeping anything. Used for simulation runs.
type NopStore struct{}

func (NopStore) GetPositionState(ctx context.Context, positionID string) (*domain.PositionState, error) {
	return nil, domain.ErrNotFound
}

func (NopStore) SavePositionState(ctx context.Context, st *domain.PositionState) error { return nil }

func (NopStore) DeletePositionState(ctx context.Context, positionID string) error { return nil }

func (NopStore) ListPositionStates(ctx context.Context) ([]*domain.PositionState, error) {
	return nil, nil
}

func (NopStore) SaveDecision(ctx context.Context, rec *domain.DecisionRecord) error { return nil }

func (NopStore) ListDecisions(ctx context.Context, limit int) ([]*domain.DecisionRecord, error) {
	return nil, nil
}

func (NopStore) SaveTrade(ctx context.Context, t *domain.TradeRecord) error { return nil }

func (NopStore) ListTrades(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	return nil, nil
}
