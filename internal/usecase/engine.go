package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/trade_lifecycle/internal/domain"
	"github.com/vitos/trade_lifecycle/internal/id"
	"go.uber.org/zap"
)

// EngineConfig identifies the strategy instance and its fixed limits.
type EngineConfig struct {
	// Label tags every order so the engine only manages its own positions. Must be unique per
	// running instance.
	Label     string
	Symbol    string
	Limits    domain.RiskLimits
	Window    TradingWindow
	BarWindow int
	QueueSize int
}

// Engine is the single decision loop. Producers hand it events through Submit; only the Run
// goroutine (or a caller of Handle in replay) touches decision state.
type Engine struct {
	cfg       EngineConfig
	account   domain.AccountProvider
	journal   domain.DecisionJournal
	gate      *RiskGate
	sizer     *PositionSizer
	guard     *OrderGuard
	lifecycle *LifecycleManager
	liveness  *LivenessReporter
	signal    Signal
	halter    *Halter
	day       TradingDay
	logger    *zap.Logger

	events chan domain.Event

	bars         []domain.Bar
	lastDecision int64
	decided      bool

	mu         sync.RWMutex
	lastReport DailyLossReport
	lastBarAt  time.Time
}

// EngineDeps groups the collaborators the engine is built from.
type EngineDeps struct {
	Account   domain.AccountProvider
	Journal   domain.DecisionJournal
	Gate      *RiskGate
	Sizer     *PositionSizer
	Guard     *OrderGuard
	Lifecycle *LifecycleManager
	Liveness  *LivenessReporter
	Signal    Signal
	Halter    *Halter
	Day       TradingDay
}

func NewEngine(cfg EngineConfig, deps EngineDeps, logger *zap.Logger) (*Engine, error) {
	if strings.TrimSpace(cfg.Label) == "" {
		return nil, fmt.Errorf("engine label is required")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("engine symbol is required")
	}
	if deps.Account == nil || deps.Gate == nil || deps.Sizer == nil || deps.Guard == nil ||
		deps.Lifecycle == nil || deps.Signal == nil || deps.Halter == nil {
		return nil, fmt.Errorf("engine is missing a collaborator")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Liveness == nil {
		deps.Liveness = NewLivenessReporter(nil, true, logger)
	}
	if cfg.BarWindow < deps.Signal.WarmupBars()+1 {
		cfg.BarWindow = deps.Signal.WarmupBars() + 1
	}
	if cfg.BarWindow < deps.Signal.HistoryBars() {
		cfg.BarWindow = deps.Signal.HistoryBars()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	return &Engine{
		cfg:       cfg,
		account:   deps.Account,
		journal:   deps.Journal,
		gate:      deps.Gate,
		sizer:     deps.Sizer,
		guard:     deps.Guard,
		lifecycle: deps.Lifecycle,
		liveness:  deps.Liveness,
		signal:    deps.Signal,
		halter:    deps.Halter,
		day:       deps.Day,
		logger:    logger.With(zap.String("label", cfg.Label), zap.String("symbol", cfg.Symbol)),
		events:    make(chan domain.Event, cfg.QueueSize),
	}, nil
}

func (e *Engine) Label() string { return e.cfg.Label }

func (e *Engine) Halted() bool { return e.halter.Halted() }

// Lifecycle exposes the state snapshot for read-only callers.
func (e *Engine) Lifecycle() *LifecycleManager { return e.lifecycle }

// LastReport is the most recent daily-loss evaluation.
func (e *Engine) LastReport() (DailyLossReport, time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastReport, e.lastBarAt
}

// Submit queues ev without blocking. It reports false when the queue is full.
func (e *Engine) Submit(ev domain.Event) bool {
	select {
	case e.events <- ev:
		return true
	default:
		return false
	}
}

// Run consumes events until ctx is done or the engine halts. A halt is returned as an error
// wrapping ErrHalted.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Engine started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine stopped")
			return nil
		case ev := <-e.events:
			if err := e.Handle(ctx, ev); err != nil {
				if errors.Is(err, domain.ErrHalted) {
					e.logger.Error("Engine halted", zap.Error(err))
					return err
				}
				e.logger.Error("Failed to handle event", zap.String("kind", string(ev.Kind)), zap.Error(err))
			}
		}
	}
}

// Handle processes one event synchronously.
func (e *Engine) Handle(ctx context.Context, ev domain.Event) error {
	if err := e.halter.Err(); err != nil {
		return err
	}

	switch ev.Kind {
	case domain.EventBar:
		if ev.Bar == nil {
			return fmt.Errorf("bar event without bar")
		}
		return e.onBar(ctx, *ev.Bar)
	case domain.EventPositionOpened:
		if ev.Position == nil || ev.Position.Label != e.cfg.Label {
			return nil
		}
		_, err := e.lifecycle.Load(ctx, *ev.Position)
		return err
	case domain.EventPositionClosed:
		return e.onPositionClosed(ctx, ev)
	case domain.EventLivenessCheck:
		open, err := e.account.MarketOpen(ctx)
		if err != nil {
			e.logger.Debug("Market status unavailable", zap.Error(err))
			return nil
		}
		e.liveness.OnLivenessCheck(open)
		return nil
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

func (e *Engine) onPositionClosed(ctx context.Context, ev domain.Event) error {
	var positionID, label string
	switch {
	case ev.Trade != nil:
		positionID, label = ev.Trade.PositionID, ev.Trade.Label
	case ev.Position != nil:
		positionID, label = ev.Position.ID, ev.Position.Label
	default:
		return fmt.Errorf("position_closed event without position")
	}
	if label != e.cfg.Label {
		return nil
	}

	if err := e.lifecycle.OnPositionClosed(ctx, positionID); err != nil {
		return err
	}
	if ev.Trade != nil && e.journal != nil {
		if err := e.journal.SaveTrade(ctx, ev.Trade); err != nil {
			e.logger.Warn("Failed to journal closed trade", zap.String("position_id", positionID), zap.Error(err))
		}
	}
	e.logger.Info("Position closed", zap.String("position_id", positionID))
	return nil
}

func (e *Engine) pushBar(bar domain.Bar) {
	if n := len(e.bars); n > 0 && e.bars[n-1].OpenTime == bar.OpenTime {
		e.bars[n-1] = bar
		return
	}
	e.bars = append(e.bars, bar)
	if over := len(e.bars) - e.cfg.BarWindow; over > 0 {
		e.bars = append(e.bars[:0], e.bars[over:]...)
	}
}

func (e *Engine) onBar(ctx context.Context, bar domain.Bar) error {
	e.pushBar(bar)

	barTime := time.Unix(bar.OpenTime, 0).UTC()
	minute := barTime.Truncate(time.Minute).Unix()
	if e.decided && e.lastDecision == minute {
		return nil
	}
	e.lastDecision = minute
	e.decided = true

	e.liveness.OnDecisionTick(barTime)

	acct, err := e.account.Account(ctx)
	if err != nil {
		return fmt.Errorf("account snapshot: %w", err)
	}
	positions, err := e.account.Positions(ctx)
	if err != nil {
		return fmt.Errorf("positions snapshot: %w", err)
	}
	history, err := e.account.History(ctx)
	if err != nil {
		return fmt.Errorf("history snapshot: %w", err)
	}
	sym, err := e.account.Symbol(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("symbol %s: %w", e.cfg.Symbol, err)
	}

	report := e.gate.Evaluate(barTime, e.cfg.Limits, acct, history, positions)
	e.mu.Lock()
	e.lastReport = report
	e.lastBarAt = barTime
	e.mu.Unlock()
	metricProfitToday.Set(report.ProfitToday)
	metricDailyLossLimit.Set(report.MaxLoss)

	usable := e.cfg.Limits.UsableBalance(acct)

	// Own positions are managed even after the daily loss limit has tripped.
	if own := e.ownPositions(positions); len(own) > 0 {
		return e.manage(ctx, barTime, bar, own, usable, sym)
	}

	if report.Reached {
		e.logger.Info("Daily loss reached",
			zap.Float64("profit_today", report.ProfitToday),
			zap.Float64("max_loss", report.MaxLoss),
			zap.Float64("starting_balance", report.StartingBalance))
		e.record(ctx, barTime, domain.OutcomeNoTrade, domain.ReasonDailyLossReached, nil, 0,
			fmt.Sprintf("profit %.2f < -%.2f", report.ProfitToday, report.MaxLoss))
		return nil
	}

	if !e.cfg.Window.Allows(e.day.Local(barTime)) {
		e.record(ctx, barTime, domain.OutcomeNoTrade, domain.ReasonOutsideTradingWindow, nil, 0, "")
		return nil
	}

	proposal := e.signal.Propose(e.bars, sym)
	if proposal == nil {
		e.record(ctx, barTime, domain.OutcomeNoTrade, domain.ReasonNoSignal, nil, 0, "")
		return nil
	}

	return e.enter(ctx, barTime, proposal, acct, sym, report.Reached)
}

func (e *Engine) ownPositions(positions []domain.OpenPosition) []domain.OpenPosition {
	var own []domain.OpenPosition
	for _, p := range positions {
		if p.Label == e.cfg.Label {
			own = append(own, p)
		}
	}
	return own
}

func (e *Engine) manage(ctx context.Context, at time.Time, bar domain.Bar, own []domain.OpenPosition, usable float64, sym domain.SymbolInfo) error {
	var applied []string
	for _, pos := range own {
		kinds, err := e.lifecycle.Manage(ctx, pos, bar.Close, usable, sym.MinVolume)
		for _, k := range kinds {
			applied = append(applied, fmt.Sprintf("%s:%s", pos.ID, k))
		}
		if err != nil {
			if errors.Is(err, domain.ErrHalted) {
				e.record(ctx, at, domain.OutcomeHalted, "", nil, 0, err.Error())
			}
			return err
		}
	}
	if len(applied) > 0 {
		e.record(ctx, at, domain.OutcomeManaged, "", nil, 0, strings.Join(applied, ","))
	}
	return nil
}

func (e *Engine) enter(ctx context.Context, at time.Time, p *Proposal, acct domain.AccountState, sym domain.SymbolInfo, gateTripped bool) error {
	stopDistance := sym.PipsToPrice(p.StopPips)
	sizing, err := e.sizer.VolumeForStop(ctx, stopDistance, e.cfg.Limits, acct, sym, gateTripped)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedCurrency) {
			e.logger.Error("Cannot size trades for this symbol", zap.String("quote_asset", sym.QuoteAsset), zap.Error(err))
			e.recordStop(ctx, at, domain.OutcomeNoTrade, domain.ReasonUnsupportedCurrency, &p.Side, 0, p.StopPips, err.Error())
		}
		return fmt.Errorf("size entry: %w", err)
	}
	if !sizing.Tradable() {
		e.logger.Info("No trade", zap.String("reason", string(sizing.Reason)), zap.Float64("stop_pips", p.StopPips))
		e.recordStop(ctx, at, domain.OutcomeNoTrade, sizing.Reason, &p.Side, 0, p.StopPips, p.Detail)
		return nil
	}

	req := domain.OrderRequest{
		ClientID:       uuid.NewString(),
		Symbol:         e.cfg.Symbol,
		Label:          e.cfg.Label,
		Side:           p.Side,
		Volume:         sizing.Volume,
		StopLossPips:   p.StopPips,
		TakeProfitPips: p.TakeProfitPips,
	}
	pos, err := e.guard.PlaceAndVerify(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrHalted) {
			e.recordStop(ctx, at, domain.OutcomeHalted, "", &p.Side, sizing.Volume, p.StopPips, err.Error())
			return err
		}
		e.recordStop(ctx, at, domain.OutcomeNoTrade, "", &p.Side, sizing.Volume, p.StopPips, err.Error())
		return err
	}

	if _, err := e.lifecycle.Load(ctx, *pos); err != nil {
		e.logger.Warn("Failed to load lifecycle state for new position", zap.String("position_id", pos.ID), zap.Error(err))
	}
	e.recordStop(ctx, at, domain.OutcomeOrderPlaced, "", &p.Side, sizing.Volume, p.StopPips, p.Detail)
	return nil
}

func (e *Engine) record(ctx context.Context, at time.Time, outcome string, reason domain.NoTradeReason, side *domain.Side, volume float64, detail string) {
	e.recordStop(ctx, at, outcome, reason, side, volume, 0, detail)
}

func (e *Engine) recordStop(ctx context.Context, at time.Time, outcome string, reason domain.NoTradeReason, side *domain.Side, volume, stopPips float64, detail string) {
	metricDecisions.WithLabelValues(outcome).Inc()
	if reason != domain.ReasonNone {
		metricNoTrade.WithLabelValues(string(reason)).Inc()
	}
	if e.journal == nil {
		return
	}

	rec := &domain.DecisionRecord{
		ID:       id.At(at),
		Time:     at,
		Label:    e.cfg.Label,
		Symbol:   e.cfg.Symbol,
		Outcome:  outcome,
		Reason:   string(reason),
		Volume:   volume,
		StopPips: stopPips,
		Detail:   detail,
	}
	if side != nil {
		rec.Side = *side
	}
	if err := e.journal.SaveDecision(ctx, rec); err != nil {
		e.logger.Warn("Failed to journal decision", zap.String("outcome", outcome), zap.Error(err))
	}
}
