package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/trade_lifecycle/internal/domain"
	"github.com/vitos/trade_lifecycle/internal/usecase"
)

var lifecycleParams = usecase.LifecycleParams{TrailingStopScale: 1.5, EarlyProfitPct: 1, EarlyCapturePct: 50}

func longPosition(netProfit float64) domain.OpenPosition {
	return domain.OpenPosition{
		ID: "p1", Label: "bot", Symbol: "EURUSD", Side: domain.SideLong,
		EntryPrice: 1.1000, StopLoss: ptr(1.0980), Volume: 10000, NetProfit: netProfit,
		PipSize: 0.0001, PipValue: 0.0001,
	}
}

func TestPlanTransitions_MovingStop(t *testing.T) {
	pos := longPosition(5)

	// 20 pip stop, scale 1.5: price has to be more than 30 pips from the stop.
	assert.Empty(t, usecase.PlanTransitions(domain.PositionState{}, pos, 1.1009, 10000, 1000, lifecycleParams))

	got := usecase.PlanTransitions(domain.PositionState{}, pos, 1.1011, 10000, 1000, lifecycleParams)
	require.Len(t, got, 1)
	assert.Equal(t, usecase.TransitionMovingStop, got[0].Kind)
	assert.Equal(t, []usecase.Command{
		{Kind: usecase.CommandEnableTrailingStop, PositionID: "p1"},
		{Kind: usecase.CommandModifyStopLoss, PositionID: "p1", Price: 1.1000},
	}, got[0].Commands)
}

func TestPlanTransitions_ZeroProfitNeverMovesStop(t *testing.T) {
	pos := longPosition(0)
	for _, price := range []float64{1.1011, 1.1100, 1.2000} {
		assert.Empty(t, usecase.PlanTransitions(domain.PositionState{}, pos, price, 10000, 1000, lifecycleParams))
	}
}

func TestPlanTransitions_MovingStopGuards(t *testing.T) {
	withTP := longPosition(5)
	withTP.TakeProfit = ptr(1.11)
	assert.Empty(t, usecase.PlanTransitions(domain.PositionState{}, withTP, 1.105, 10000, 1000, lifecycleParams))

	trailing := longPosition(5)
	trailing.HasTrailingStop = true
	assert.Empty(t, usecase.PlanTransitions(domain.PositionState{}, trailing, 1.105, 10000, 1000, lifecycleParams))

	noStop := longPosition(5)
	noStop.StopLoss = nil
	assert.Empty(t, usecase.PlanTransitions(domain.PositionState{}, noStop, 1.105, 10000, 1000, lifecycleParams))

	assert.Empty(t, usecase.PlanTransitions(domain.PositionState{MovingStopActivated: true}, longPosition(5), 1.105, 10000, 1000, lifecycleParams))
}

func TestPlanTransitions_EarlyProfit(t *testing.T) {
	pos := longPosition(150)
	pos.TakeProfit = ptr(1.12)
	pos.Volume = 15000

	got := usecase.PlanTransitions(domain.PositionState{}, pos, 1.1010, 10000, 1000, lifecycleParams)
	require.Len(t, got, 1)
	assert.Equal(t, usecase.TransitionEarlyProfit, got[0].Kind)
	// Half of 15000 is 7500, floored to whole 1000 lots.
	assert.Equal(t, usecase.Command{Kind: usecase.CommandModifyVolume, PositionID: "p1", Volume: 7000}, got[0].Commands[0])
	assert.Equal(t, usecase.Command{Kind: usecase.CommandModifyStopLoss, PositionID: "p1", Price: 1.1000}, got[0].Commands[1])

	assert.Empty(t, usecase.PlanTransitions(domain.PositionState{EarlyProfitTaken: true}, pos, 1.1010, 10000, 1000, lifecycleParams))
}

func TestPlanTransitions_EarlyProfitFullClose(t *testing.T) {
	params := lifecycleParams
	params.EarlyCapturePct = 100
	pos := longPosition(150)
	pos.TakeProfit = ptr(1.12)

	got := usecase.PlanTransitions(domain.PositionState{}, pos, 1.1010, 10000, 1000, params)
	require.Len(t, got, 1)
	assert.Equal(t, []usecase.Command{{Kind: usecase.CommandClosePosition, PositionID: "p1"}}, got[0].Commands)
}

func TestPlanTransitions_EarlyProfitDisabled(t *testing.T) {
	params := lifecycleParams
	params.EarlyCapturePct = 0
	pos := longPosition(500)
	pos.TakeProfit = ptr(1.12)
	assert.Empty(t, usecase.PlanTransitions(domain.PositionState{}, pos, 1.1010, 10000, 1000, params))
}

func TestLifecycleManager_AppliesAndPersists(t *testing.T) {
	host := NewMockHost()
	store := NewMockStore()
	m := usecase.NewLifecycleManager(store, host, &usecase.Halter{}, lifecycleParams, false, nil)
	ctx := context.Background()
	pos := longPosition(5)

	_, err := m.Load(ctx, pos)
	require.NoError(t, err)

	applied, err := m.Manage(ctx, pos, 1.1011, 10000, 1000)
	require.NoError(t, err)
	assert.Equal(t, []usecase.TransitionKind{usecase.TransitionMovingStop}, applied)
	assert.Equal(t, []string{"set_trailing", "modify_stop"}, host.Calls)
	assert.Equal(t, 1.1000, host.StopMoves["p1"])
	assert.True(t, store.States["p1"].MovingStopActivated)

	// Fires once per position.
	applied, err = m.Manage(ctx, pos, 1.1020, 10000, 1000)
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Len(t, host.TrailingSets, 1)
}

func TestLifecycleManager_ResumesFromStore(t *testing.T) {
	host := NewMockHost()
	store := NewMockStore()
	store.States["p1"] = domain.PositionState{PositionID: "p1", MovingStopActivated: true}
	m := usecase.NewLifecycleManager(store, host, &usecase.Halter{}, lifecycleParams, false, nil)

	state, err := m.Load(context.Background(), longPosition(5))
	require.NoError(t, err)
	assert.True(t, state.MovingStopActivated)

	applied, err := m.Manage(context.Background(), longPosition(5), 1.1050, 10000, 1000)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestLifecycleManager_FlagsAreMonotone(t *testing.T) {
	host := NewMockHost()
	store := NewMockStore()
	m := usecase.NewLifecycleManager(store, host, &usecase.Halter{}, lifecycleParams, false, nil)
	ctx := context.Background()

	pos := longPosition(150)
	_, err := m.Manage(ctx, pos, 1.1050, 10000, 1000)
	require.NoError(t, err)

	// Profit falls back: nothing is undone.
	pos.NetProfit = -10
	_, err = m.Manage(ctx, pos, 1.0990, 10000, 1000)
	require.NoError(t, err)

	state, ok := m.GetState("p1")
	require.True(t, ok)
	assert.True(t, state.MovingStopActivated)
	assert.True(t, state.EarlyProfitTaken)
	assert.True(t, store.States["p1"].MovingStopActivated)
	assert.True(t, store.States["p1"].EarlyProfitTaken)
}

func TestLifecycleManager_TrailingFailureClosesAndHalts(t *testing.T) {
	host := NewMockHost()
	host.TrailingErr = errors.New("trailing not supported")
	store := NewMockStore()
	halter := &usecase.Halter{}
	m := usecase.NewLifecycleManager(store, host, halter, lifecycleParams, false, nil)

	_, err := m.Manage(context.Background(), longPosition(5), 1.1011, 10000, 1000)
	assert.ErrorIs(t, err, domain.ErrHalted)
	assert.True(t, halter.Halted())
	assert.Equal(t, []string{"p1"}, host.Closed)
	assert.False(t, store.States["p1"].MovingStopActivated)

	_, err = m.Manage(context.Background(), longPosition(5), 1.1011, 10000, 1000)
	assert.ErrorIs(t, err, domain.ErrHalted)
}

func TestLifecycleManager_SimulationNeverPersists(t *testing.T) {
	host := NewMockHost()
	store := NewMockStore()
	store.States["p1"] = domain.PositionState{PositionID: "p1", MovingStopActivated: true, EarlyProfitTaken: true}
	m := usecase.NewLifecycleManager(store, host, &usecase.Halter{}, lifecycleParams, true, nil)
	ctx := context.Background()

	state, err := m.Load(ctx, longPosition(5))
	require.NoError(t, err)
	assert.False(t, state.MovingStopActivated)
	assert.False(t, state.EarlyProfitTaken)

	_, err = m.Manage(ctx, longPosition(5), 1.1011, 10000, 1000)
	require.NoError(t, err)

	require.NoError(t, m.OnPositionClosed(ctx, "p1"))
	assert.Zero(t, store.Gets)
	assert.Zero(t, store.Saves)
	assert.Zero(t, store.Deletes)
}

func TestLifecycleManager_OnPositionClosedDeletesState(t *testing.T) {
	store := NewMockStore()
	m := usecase.NewLifecycleManager(store, NewMockHost(), &usecase.Halter{}, lifecycleParams, false, nil)
	ctx := context.Background()

	_, err := m.Manage(ctx, longPosition(5), 1.1011, 10000, 1000)
	require.NoError(t, err)
	require.Contains(t, store.States, "p1")

	require.NoError(t, m.OnPositionClosed(ctx, "p1"))
	assert.NotContains(t, store.States, "p1")
	_, ok := m.GetState("p1")
	assert.False(t, ok)
	assert.Empty(t, m.Snapshot())
}

func TestLifecycleManager_ReloadKeepsTrackedFlags(t *testing.T) {
	for _, simulation := range []bool{true, false} {
		host := NewMockHost()
		store := NewMockStore()
		m := usecase.NewLifecycleManager(store, host, &usecase.Halter{}, lifecycleParams, simulation, nil)
		ctx := context.Background()

		_, err := m.Load(ctx, longPosition(5))
		require.NoError(t, err)
		applied, err := m.Manage(ctx, longPosition(5), 1.1011, 10000, 1000)
		require.NoError(t, err)
		require.Equal(t, []usecase.TransitionKind{usecase.TransitionMovingStop}, applied)

		// A repeated position_opened for the same position must not reset anything.
		state, err := m.Load(ctx, longPosition(5))
		require.NoError(t, err)
		assert.True(t, state.MovingStopActivated, "simulation=%t", simulation)

		applied, err = m.Manage(ctx, longPosition(5), 1.1011, 10000, 1000)
		require.NoError(t, err)
		assert.Empty(t, applied, "simulation=%t", simulation)
		assert.Len(t, host.TrailingSets, 1, "simulation=%t", simulation)
	}
}
