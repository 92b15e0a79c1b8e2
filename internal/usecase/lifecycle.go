package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vitos/trade_lifecycle/internal/domain"
	"go.uber.org/zap"
)

type CommandKind string

const (
	CommandEnableTrailingStop CommandKind = "ENABLE_TRAILING_STOP"
	CommandModifyStopLoss     CommandKind = "MODIFY_STOP_LOSS"
	CommandModifyVolume       CommandKind = "MODIFY_VOLUME"
	CommandClosePosition      CommandKind = "CLOSE_POSITION"
)

// Command is a mutation the lifecycle asks the host to perform.
type Command struct {
	Kind       CommandKind
	PositionID string
	Price      float64
	Volume     float64
}

type TransitionKind string

const (
	TransitionMovingStop  TransitionKind = "moving_stop"
	TransitionEarlyProfit TransitionKind = "early_profit"
)

type Transition struct {
	Kind     TransitionKind
	Commands []Command
}

// LifecycleParams tune the two transitions.
type LifecycleParams struct {
	// TrailingStopScale is how many initial stop distances price must travel from the stop
	// before the trailing stop is enabled.
	TrailingStopScale float64
	// EarlyProfitPct is the unrealized profit, as a percent of usable balance, that triggers
	// early profit capture.
	EarlyProfitPct float64
	// EarlyCapturePct is the share of the position closed on early profit. 0 disables it.
	EarlyCapturePct float64
}

// PlanTransitions decides which transitions fire for pos at the given price. It does not touch the
// host; the returned commands are applied by LifecycleManager.
func PlanTransitions(
	state domain.PositionState,
	pos domain.OpenPosition,
	price float64,
	usableBalance float64,
	minVolume float64,
	params LifecycleParams,
) []Transition {
	var out []Transition

	if movingStopDue(state, pos, price, params) {
		out = append(out, Transition{
			Kind: TransitionMovingStop,
			Commands: []Command{
				{Kind: CommandEnableTrailingStop, PositionID: pos.ID},
				{Kind: CommandModifyStopLoss, PositionID: pos.ID, Price: pos.EntryPrice},
			},
		})
	}

	if earlyProfitDue(state, pos, usableBalance, params) {
		t := Transition{Kind: TransitionEarlyProfit}
		if params.EarlyCapturePct >= 100 {
			t.Commands = []Command{{Kind: CommandClosePosition, PositionID: pos.ID}}
		} else {
			remaining := pos.Volume * (1 - params.EarlyCapturePct/100)
			if minVolume > 0 {
				remaining = math.Floor(remaining/minVolume+1e-9) * minVolume
			}
			if remaining <= 0 {
				t.Commands = []Command{{Kind: CommandClosePosition, PositionID: pos.ID}}
			} else {
				t.Commands = []Command{
					{Kind: CommandModifyVolume, PositionID: pos.ID, Volume: remaining},
					{Kind: CommandModifyStopLoss, PositionID: pos.ID, Price: pos.EntryPrice},
				}
			}
		}
		out = append(out, t)
	}

	return out
}

func movingStopDue(state domain.PositionState, pos domain.OpenPosition, price float64, params LifecycleParams) bool {
	if state.MovingStopActivated || pos.NetProfit <= 0 || pos.HasTrailingStop || pos.TakeProfit != nil {
		return false
	}
	if pos.StopLoss == nil {
		return false
	}
	initialStop := math.Abs(pos.EntryPrice - *pos.StopLoss)
	awayFromStop := math.Abs(price - *pos.StopLoss)
	return awayFromStop > initialStop*params.TrailingStopScale
}

func earlyProfitDue(state domain.PositionState, pos domain.OpenPosition, usableBalance float64, params LifecycleParams) bool {
	if state.EarlyProfitTaken || params.EarlyCapturePct <= 0 {
		return false
	}
	return pos.NetProfit > usableBalance*params.EarlyProfitPct/100
}

// LifecycleManager owns the per-position state map. Mutating methods are only called from the
// engine's decision goroutine; Snapshot may be called from anywhere.
type LifecycleManager struct {
	store      domain.PositionStateStore
	exec       domain.ExecutionSurface
	halter     *Halter
	params     LifecycleParams
	simulation bool
	logger     *zap.Logger

	mu     sync.RWMutex
	states map[string]*domain.PositionState
	now    func() time.Time
}

func NewLifecycleManager(
	store domain.PositionStateStore,
	exec domain.ExecutionSurface,
	halter *Halter,
	params LifecycleParams,
	simulation bool,
	logger *zap.Logger,
) *LifecycleManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleManager{
		store:      store,
		exec:       exec,
		halter:     halter,
		params:     params,
		simulation: simulation,
		logger:     logger,
		states:     make(map[string]*domain.PositionState),
		now:        time.Now,
	}
}

// GetState returns a copy of the cached state for a position.
func (m *LifecycleManager) GetState(positionID string) (domain.PositionState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.states[positionID]; ok {
		return *s, true
	}
	return domain.PositionState{}, false
}

// Snapshot copies every cached state.
func (m *LifecycleManager) Snapshot() []domain.PositionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.PositionState, 0, len(m.states))
	for _, s := range m.states {
		out = append(out, *s)
	}
	return out
}

// Load returns the tracked state for pos. A position seen for the first time is looked up in the
// store, or starts at false,false. In simulation the store is never consulted.
func (m *LifecycleManager) Load(ctx context.Context, pos domain.OpenPosition) (*domain.PositionState, error) {
	m.mu.RLock()
	tracked, ok := m.states[pos.ID]
	m.mu.RUnlock()
	if ok {
		return tracked, nil
	}

	fresh := &domain.PositionState{PositionID: pos.ID, Label: pos.Label, UpdatedAt: m.now()}

	if m.simulation {
		m.put(fresh)
		return fresh, nil
	}

	stored, err := m.store.GetPositionState(ctx, pos.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		m.put(fresh)
		return fresh, nil
	case err != nil:
		return nil, fmt.Errorf("load position state %s: %w", pos.ID, err)
	}

	m.put(stored)
	return stored, nil
}

func (m *LifecycleManager) put(s *domain.PositionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[s.PositionID] = s
}

// Manage evaluates pos at price and applies whatever transitions are due. A failed trailing stop
// closes the position and halts the engine.
func (m *LifecycleManager) Manage(ctx context.Context, pos domain.OpenPosition, price, usableBalance, minVolume float64) ([]TransitionKind, error) {
	if err := m.halter.Err(); err != nil {
		return nil, err
	}

	state, err := m.Load(ctx, pos)
	if err != nil {
		return nil, err
	}

	var applied []TransitionKind
	for _, t := range PlanTransitions(*state, pos, price, usableBalance, minVolume, m.params) {
		if err := m.apply(ctx, t); err != nil {
			return applied, err
		}

		m.mu.Lock()
		switch t.Kind {
		case TransitionMovingStop:
			state.MovingStopActivated = true
		case TransitionEarlyProfit:
			state.EarlyProfitTaken = true
		}
		state.UpdatedAt = m.now()
		snapshot := *state
		m.mu.Unlock()

		applied = append(applied, t.Kind)
		metricTransitions.WithLabelValues(string(t.Kind)).Inc()
		m.logger.Info("Position lifecycle transition",
			zap.String("position_id", pos.ID),
			zap.String("transition", string(t.Kind)),
			zap.Float64("price", price),
			zap.Float64("net_profit", pos.NetProfit))

		if err := m.save(ctx, &snapshot); err != nil {
			return applied, err
		}
	}
	return applied, nil
}

func (m *LifecycleManager) apply(ctx context.Context, t Transition) error {
	for _, c := range t.Commands {
		var err error
		switch c.Kind {
		case CommandEnableTrailingStop:
			if err = m.exec.SetTrailingStop(ctx, c.PositionID, true); err != nil {
				m.logger.Error("Failed to set up trailing stop. Closing position and halting",
					zap.String("position_id", c.PositionID), zap.Error(err))
				metricProtectionFailures.WithLabelValues("trailing_stop").Inc()
				return closeAndHalt(ctx, m.exec, m.halter, m.logger, c.PositionID,
					fmt.Errorf("%w: trailing stop on position %s: %w", domain.ErrProtectionNotAttached, c.PositionID, err))
			}
			continue
		case CommandModifyStopLoss:
			err = m.exec.ModifyStopLoss(ctx, c.PositionID, c.Price)
		case CommandModifyVolume:
			err = m.exec.ModifyVolume(ctx, c.PositionID, c.Volume)
		case CommandClosePosition:
			err = m.exec.ClosePosition(ctx, c.PositionID)
		default:
			err = fmt.Errorf("unknown command %s", c.Kind)
		}
		if err != nil {
			return fmt.Errorf("%s %s on %s: %w", t.Kind, c.Kind, c.PositionID, err)
		}
	}
	return nil
}

func (m *LifecycleManager) save(ctx context.Context, s *domain.PositionState) error {
	if m.simulation {
		return nil
	}
	if err := m.store.SavePositionState(ctx, s); err != nil {
		return fmt.Errorf("save position state %s: %w", s.PositionID, err)
	}
	return nil
}

// OnPositionClosed drops all state for a closed position.
func (m *LifecycleManager) OnPositionClosed(ctx context.Context, positionID string) error {
	m.mu.Lock()
	delete(m.states, positionID)
	m.mu.Unlock()

	if m.simulation {
		return nil
	}
	if err := m.store.DeletePositionState(ctx, positionID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete position state %s: %w", positionID, err)
	}
	return nil
}
