package usecase_test

import (
	"context"
	"sync"

	"github.com/vitos/trade_lifecycle/internal/domain"
)

// MockHost is an in-memory AccountProvider and ExecutionSurface that records every call.
type MockHost struct {
	mu sync.Mutex

	AccountState domain.AccountState
	SymbolInfo   domain.SymbolInfo
	Open         []domain.OpenPosition
	Trades       []domain.TradeRecord
	Rates        map[string]float64
	IsMarketOpen bool

	// FillPosition, when set, is returned by ExecuteMarketOrder instead of the default fill.
	FillPosition *domain.OpenPosition
	ExecuteErr   error
	TrailingErr  error
	CloseErr     error

	Orders       []domain.OrderRequest
	Closed       []string
	StopMoves    map[string]float64
	VolumeMoves  map[string]float64
	TrailingSets []string
	Calls        []string
}

func NewMockHost() *MockHost {
	return &MockHost{
		AccountState: domain.AccountState{Balance: 10000, Currency: "USD"},
		SymbolInfo: domain.SymbolInfo{
			Name: "EURUSD", QuoteAsset: "USD", PipSize: 0.0001, PipValue: 0.0001,
			MinVolume: 1000, MarginPerMinVolume: 33,
		},
		Rates:       map[string]float64{},
		StopMoves:   map[string]float64{},
		VolumeMoves: map[string]float64{},
	}
}

func (m *MockHost) Account(ctx context.Context) (domain.AccountState, error) {
	return m.AccountState, nil
}

func (m *MockHost) Symbol(ctx context.Context, name string) (domain.SymbolInfo, error) {
	return m.SymbolInfo, nil
}

func (m *MockHost) Positions(ctx context.Context) ([]domain.OpenPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OpenPosition(nil), m.Open...), nil
}

func (m *MockHost) History(ctx context.Context) ([]domain.TradeRecord, error) {
	return m.Trades, nil
}

func (m *MockHost) CrossRate(ctx context.Context, pair string) (float64, error) {
	rate, ok := m.Rates[pair]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return rate, nil
}

func (m *MockHost) MarketOpen(ctx context.Context) (bool, error) {
	return m.IsMarketOpen, nil
}

func (m *MockHost) ExecuteMarketOrder(ctx context.Context, req domain.OrderRequest) (*domain.OpenPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "execute")
	m.Orders = append(m.Orders, req)
	if m.ExecuteErr != nil {
		return nil, m.ExecuteErr
	}
	if m.FillPosition != nil {
		pos := *m.FillPosition
		m.Open = append(m.Open, pos)
		return &pos, nil
	}
	entry := 1.1000
	stop := entry - req.StopLossPips*0.0001
	if req.Side == domain.SideShort {
		stop = entry + req.StopLossPips*0.0001
	}
	pos := domain.OpenPosition{
		ID: "pos-1", Label: req.Label, Symbol: req.Symbol, Side: req.Side,
		EntryPrice: entry, StopLoss: &stop, Volume: req.Volume, PipSize: 0.0001, PipValue: 0.0001,
	}
	if req.TakeProfitPips != nil {
		tp := entry + *req.TakeProfitPips*0.0001
		pos.TakeProfit = &tp
	}
	m.Open = append(m.Open, pos)
	return &pos, nil
}

func (m *MockHost) ModifyStopLoss(ctx context.Context, positionID string, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "modify_stop")
	m.StopMoves[positionID] = price
	return nil
}

func (m *MockHost) ModifyVolume(ctx context.Context, positionID string, volume float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "modify_volume")
	m.VolumeMoves[positionID] = volume
	return nil
}

func (m *MockHost) SetTrailingStop(ctx context.Context, positionID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "set_trailing")
	if m.TrailingErr != nil {
		return m.TrailingErr
	}
	m.TrailingSets = append(m.TrailingSets, positionID)
	return nil
}

func (m *MockHost) ClosePosition(ctx context.Context, positionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "close")
	if m.CloseErr != nil {
		return m.CloseErr
	}
	m.Closed = append(m.Closed, positionID)
	kept := m.Open[:0]
	for _, p := range m.Open {
		if p.ID != positionID {
			kept = append(kept, p)
		}
	}
	m.Open = kept
	return nil
}

// MockStore is an in-memory PositionStateStore and DecisionJournal.
type MockStore struct {
	mu        sync.Mutex
	States    map[string]domain.PositionState
	Decisions []*domain.DecisionRecord
	TradeRows []*domain.TradeRecord
	Gets      int
	Saves     int
	Deletes   int
}

func NewMockStore() *MockStore {
	return &MockStore{States: map[string]domain.PositionState{}}
}

func (m *MockStore) GetPositionState(ctx context.Context, positionID string) (*domain.PositionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	s, ok := m.States[positionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *MockStore) SavePositionState(ctx context.Context, state *domain.PositionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saves++
	merged := m.States[state.PositionID]
	merged.PositionID = state.PositionID
	merged.Label = state.Label
	merged.Merge(*state)
	m.States[state.PositionID] = merged
	return nil
}

func (m *MockStore) DeletePositionState(ctx context.Context, positionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deletes++
	delete(m.States, positionID)
	return nil
}

func (m *MockStore) ListPositionStates(ctx context.Context) ([]*domain.PositionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PositionState
	for _, s := range m.States {
		s := s
		out = append(out, &s)
	}
	return out, nil
}

func (m *MockStore) SaveDecision(ctx context.Context, rec *domain.DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Decisions = append(m.Decisions, rec)
	return nil
}

func (m *MockStore) ListDecisions(ctx context.Context, limit int) ([]*domain.DecisionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Decisions, nil
}

func (m *MockStore) SaveTrade(ctx context.Context, trade *domain.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TradeRows = append(m.TradeRows, trade)
	return nil
}

func (m *MockStore) ListTrades(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	return m.TradeRows, nil
}

// MockSink counts liveness pings. When Block is set each ping waits for it to be closed.
type MockSink struct {
	mu    sync.Mutex
	Pings int
	Err   error
	Block chan struct{}
}

func (m *MockSink) Ping(ctx context.Context) error {
	m.mu.Lock()
	m.Pings++
	block, err := m.Block, m.Err
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *MockSink) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Pings
}

func ptr(v float64) *float64 { return &v }
