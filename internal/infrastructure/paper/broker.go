// Package paper is an in-memory trading host used by simulation runs. It fills market orders at the
// last bar close, enforces a minimum protective distance and books stop, target and trailing exits
// as bars arrive.
package paper

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/trade_lifecycle/internal/domain"
	"github.com/vitos/trade_lifecycle/internal/id"
)

type Config struct {
	Balance  float64
	Currency string
	Symbol   domain.SymbolInfo
	// MinStopPips is the closest a stop or target may sit. Closer requests open the position
	// without that protection, the way a real host silently drops them.
	MinStopPips float64
	// MarginRate is the fraction of notional held as margin.
	MarginRate float64
	CrossRates map[string]float64
}

type position struct {
	domain.OpenPosition
	trailDistance float64
}

type Broker struct {
	cfg Config

	mu        sync.Mutex
	balance   decimal.Decimal
	positions map[string]*position
	history   []domain.TradeRecord
	outbox    []domain.Event
	last      domain.Bar
	hasBar    bool
}

// NewBroker fails when the symbol has no pip value and none can be derived from CrossRates.
func NewBroker(cfg Config) (*Broker, error) {
	if cfg.MarginRate <= 0 {
		cfg.MarginRate = 0.0333
	}
	if cfg.Currency == "" {
		cfg.Currency = cfg.Symbol.QuoteAsset
	}
	if cfg.Symbol.PipValue <= 0 {
		pv, err := accountPipValue(cfg)
		if err != nil {
			return nil, err
		}
		cfg.Symbol.PipValue = pv
	}
	return &Broker{
		cfg:       cfg,
		balance:   decimal.NewFromFloat(cfg.Balance),
		positions: make(map[string]*position),
	}, nil
}

// accountPipValue is the account-currency value of one pip for one unit: the pip size converted
// from the quote currency at the configured cross rate (QUOTEACCT, or the inverse ACCTQUOTE).
func accountPipValue(cfg Config) (float64, error) {
	quote, acct := cfg.Symbol.QuoteAsset, cfg.Currency
	if quote == acct {
		return cfg.Symbol.PipSize, nil
	}
	if rate, ok := cfg.CrossRates[quote+acct]; ok && rate > 0 {
		return cfg.Symbol.PipSize * rate, nil
	}
	if rate, ok := cfg.CrossRates[acct+quote]; ok && rate > 0 {
		return cfg.Symbol.PipSize / rate, nil
	}
	return 0, fmt.Errorf("no cross rate %s%s to value %s pips in %s", quote, acct, cfg.Symbol.Name, acct)
}

func (b *Broker) now() time.Time {
	if !b.hasBar {
		return time.Unix(0, 0).UTC()
	}
	return time.Unix(b.last.OpenTime, 0).UTC()
}

// OnBar advances the simulated market. Exits triggered inside the bar are booked and queued as
// position_closed events.
func (b *Broker) OnBar(bar domain.Bar) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = bar
	b.hasBar = true

	for _, pid := range b.sortedIDs() {
		p := b.positions[pid]
		if exit, ok := b.exitPrice(p, bar); ok {
			b.closeLocked(p, p.Volume, exit)
			continue
		}
		b.trail(p, bar)
		p.NetProfit = b.profit(p.OpenPosition, p.Volume, bar.Close)
	}
}

func (b *Broker) sortedIDs() []string {
	ids := make([]string, 0, len(b.positions))
	for pid := range b.positions {
		ids = append(ids, pid)
	}
	sort.Strings(ids)
	return ids
}

// exitPrice checks stop before target so a bar that spans both is booked as a loss.
func (b *Broker) exitPrice(p *position, bar domain.Bar) (float64, bool) {
	if p.Side == domain.SideLong {
		if p.StopLoss != nil && bar.Low <= *p.StopLoss {
			return math.Min(*p.StopLoss, bar.Open), true
		}
		if p.TakeProfit != nil && bar.High >= *p.TakeProfit {
			return *p.TakeProfit, true
		}
		return 0, false
	}
	if p.StopLoss != nil && bar.High >= *p.StopLoss {
		return math.Max(*p.StopLoss, bar.Open), true
	}
	if p.TakeProfit != nil && bar.Low <= *p.TakeProfit {
		return *p.TakeProfit, true
	}
	return 0, false
}

func (b *Broker) trail(p *position, bar domain.Bar) {
	if !p.HasTrailingStop || p.StopLoss == nil || p.trailDistance <= 0 {
		return
	}
	if p.Side == domain.SideLong {
		if next := bar.Close - p.trailDistance; next > *p.StopLoss {
			p.StopLoss = &next
		}
		return
	}
	if next := bar.Close + p.trailDistance; next < *p.StopLoss {
		p.StopLoss = &next
	}
}

func (b *Broker) profit(p domain.OpenPosition, volume, price float64) float64 {
	pips := (price - p.EntryPrice) / b.cfg.Symbol.PipSize
	if p.Side == domain.SideShort {
		pips = -pips
	}
	return decimal.NewFromFloat(pips).
		Mul(decimal.NewFromFloat(volume)).
		Mul(decimal.NewFromFloat(b.cfg.Symbol.PipValue)).
		Round(2).
		InexactFloat64()
}

func (b *Broker) closeLocked(p *position, volume, price float64) {
	net := b.profit(p.OpenPosition, volume, price)
	b.balance = b.balance.Add(decimal.NewFromFloat(net))

	trade := domain.TradeRecord{
		ID:           id.At(b.now()),
		PositionID:   p.ID,
		Label:        p.Label,
		Symbol:       p.Symbol,
		Side:         p.Side,
		Volume:       volume,
		EntryPrice:   p.EntryPrice,
		ClosingPrice: price,
		EntryTime:    p.EntryTime,
		ClosingTime:  b.now(),
		NetProfit:    net,
	}
	b.history = append(b.history, trade)

	remaining := p.Volume - volume
	if remaining <= b.cfg.Symbol.MinVolume*1e-9 {
		delete(b.positions, p.ID)
		b.outbox = append(b.outbox, domain.Event{Kind: domain.EventPositionClosed, At: b.now(), Trade: &trade})
		return
	}
	p.Volume = remaining
}

// DrainEvents returns and clears queued events.
func (b *Broker) DrainEvents() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.outbox
	b.outbox = nil
	return out
}

// AccountProvider Implementation

func (b *Broker) Account(ctx context.Context) (domain.AccountState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	used := decimal.Zero
	for _, p := range b.positions {
		used = used.Add(decimal.NewFromFloat(p.Volume * b.last.Close * b.cfg.MarginRate))
	}
	return domain.AccountState{
		Balance:    b.balance.InexactFloat64(),
		UsedMargin: used.InexactFloat64(),
		Currency:   b.cfg.Currency,
	}, nil
}

func (b *Broker) Symbol(ctx context.Context, name string) (domain.SymbolInfo, error) {
	if name != b.cfg.Symbol.Name {
		return domain.SymbolInfo{}, fmt.Errorf("symbol %s: %w", name, domain.ErrNotFound)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	sym := b.cfg.Symbol
	if b.hasBar {
		sym.MarginPerMinVolume = sym.MinVolume * b.last.Close * b.cfg.MarginRate
	}
	return sym, nil
}

func (b *Broker) Positions(ctx context.Context) ([]domain.OpenPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.OpenPosition, 0, len(b.positions))
	for _, pid := range b.sortedIDs() {
		out = append(out, copyPosition(b.positions[pid].OpenPosition))
	}
	return out, nil
}

func (b *Broker) History(ctx context.Context) ([]domain.TradeRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.TradeRecord(nil), b.history...), nil
}

func (b *Broker) CrossRate(ctx context.Context, pair string) (float64, error) {
	rate, ok := b.cfg.CrossRates[pair]
	if !ok {
		return 0, fmt.Errorf("cross rate %s: %w", pair, domain.ErrNotFound)
	}
	return rate, nil
}

func (b *Broker) MarketOpen(ctx context.Context) (bool, error) {
	return true, nil
}

// ExecutionSurface Implementation

func (b *Broker) ExecuteMarketOrder(ctx context.Context, req domain.OrderRequest) (*domain.OpenPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasBar {
		return nil, fmt.Errorf("no price yet")
	}
	if req.Symbol != b.cfg.Symbol.Name {
		return nil, fmt.Errorf("symbol %s: %w", req.Symbol, domain.ErrNotFound)
	}
	if req.Volume < b.cfg.Symbol.MinVolume {
		return nil, fmt.Errorf("volume %f below minimum %f", req.Volume, b.cfg.Symbol.MinVolume)
	}

	sym := b.cfg.Symbol
	half := sym.Spread / 2
	entry := b.last.Close + half
	dir := 1.0
	if req.Side == domain.SideShort {
		entry = b.last.Close - half
		dir = -1
	}

	p := &position{OpenPosition: domain.OpenPosition{
		ID:         id.At(b.now()),
		Label:      req.Label,
		Symbol:     req.Symbol,
		Side:       req.Side,
		EntryPrice: entry,
		Volume:     req.Volume,
		PipSize:    sym.PipSize,
		PipValue:   sym.PipValue,
		EntryTime:  b.now(),
	}}
	if req.StopLossPips >= b.cfg.MinStopPips && req.StopLossPips > 0 {
		stop := entry - dir*sym.PipsToPrice(req.StopLossPips)
		p.StopLoss = &stop
	}
	if req.TakeProfitPips != nil && *req.TakeProfitPips >= b.cfg.MinStopPips && *req.TakeProfitPips > 0 {
		tp := entry + dir*sym.PipsToPrice(*req.TakeProfitPips)
		p.TakeProfit = &tp
	}
	p.NetProfit = b.profit(p.OpenPosition, p.Volume, b.last.Close)

	b.positions[p.ID] = p
	out := copyPosition(p.OpenPosition)
	return &out, nil
}

func (b *Broker) get(positionID string) (*position, error) {
	p, ok := b.positions[positionID]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", positionID, domain.ErrNotFound)
	}
	return p, nil
}

func (b *Broker) ModifyStopLoss(ctx context.Context, positionID string, price float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.get(positionID)
	if err != nil {
		return err
	}
	p.StopLoss = &price
	return nil
}

// ModifyVolume reduces the position. The closed part is booked at the last close.
func (b *Broker) ModifyVolume(ctx context.Context, positionID string, volume float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.get(positionID)
	if err != nil {
		return err
	}
	if volume <= 0 || volume > p.Volume {
		return fmt.Errorf("volume %f out of range for position %s", volume, positionID)
	}
	if volume == p.Volume {
		return nil
	}
	b.closeLocked(p, p.Volume-volume, b.last.Close)
	p.NetProfit = b.profit(p.OpenPosition, p.Volume, b.last.Close)
	return nil
}

// SetTrailingStop keeps the current stop distance and follows price with it.
func (b *Broker) SetTrailingStop(ctx context.Context, positionID string, enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.get(positionID)
	if err != nil {
		return err
	}
	if enabled && p.StopLoss == nil {
		return fmt.Errorf("position %s has no stop to trail", positionID)
	}
	p.HasTrailingStop = enabled
	if enabled {
		p.trailDistance = math.Abs(p.EntryPrice - *p.StopLoss)
	}
	return nil
}

func (b *Broker) ClosePosition(ctx context.Context, positionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.get(positionID)
	if err != nil {
		return err
	}
	b.closeLocked(p, p.Volume, b.last.Close)
	return nil
}

func copyPosition(p domain.OpenPosition) domain.OpenPosition {
	if p.StopLoss != nil {
		v := *p.StopLoss
		p.StopLoss = &v
	}
	if p.TakeProfit != nil {
		v := *p.TakeProfit
		p.TakeProfit = &v
	}
	return p
}
