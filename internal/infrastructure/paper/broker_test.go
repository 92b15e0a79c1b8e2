package paper_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/trade_lifecycle/internal/domain"
	"github.com/vitos/trade_lifecycle/internal/infrastructure/paper"
)

func newBroker(t *testing.T) *paper.Broker {
	t.Helper()
	b, err := paper.NewBroker(paper.Config{
		Balance:  10000,
		Currency: "USD",
		Symbol: domain.SymbolInfo{
			Name: "EURUSD", QuoteAsset: "USD", PipSize: 0.0001, PipValue: 0.0001, MinVolume: 1000,
		},
		MinStopPips: 5,
		MarginRate:  0.03,
	})
	require.NoError(t, err)
	b.OnBar(domain.Bar{OpenTime: 1709632800, Open: 1.1, High: 1.1, Low: 1.1, Close: 1.1})
	return b
}

func TestBroker_FillWithProtection(t *testing.T) {
	b := newBroker(t)
	ctx := context.Background()

	pos, err := b.ExecuteMarketOrder(ctx, domain.OrderRequest{Symbol: "EURUSD", Label: "bot", Side: domain.SideLong, Volume: 10000, StopLossPips: 20, TakeProfitPips: ptr(40)})
	require.NoError(t, err)
	require.NotNil(t, pos.StopLoss)
	require.NotNil(t, pos.TakeProfit)
	assert.InDelta(t, 1.098, *pos.StopLoss, 1e-9)
	assert.InDelta(t, 1.104, *pos.TakeProfit, 1e-9)

	acct, err := b.Account(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 330, acct.UsedMargin, 1e-6)
}

func TestBroker_DropsStopsTooClose(t *testing.T) {
	b := newBroker(t)

	pos, err := b.ExecuteMarketOrder(context.Background(), domain.OrderRequest{Symbol: "EURUSD", Side: domain.SideShort, Volume: 1000, StopLossPips: 2})
	require.NoError(t, err)
	assert.Nil(t, pos.StopLoss)
}

func TestBroker_StopLossExit(t *testing.T) {
	b := newBroker(t)
	ctx := context.Background()
	pos, err := b.ExecuteMarketOrder(ctx, domain.OrderRequest{Symbol: "EURUSD", Label: "bot", Side: domain.SideLong, Volume: 10000, StopLossPips: 20})
	require.NoError(t, err)

	b.OnBar(domain.Bar{OpenTime: 1709632860, Open: 1.099, High: 1.0995, Low: 1.097, Close: 1.0975})

	open, err := b.Positions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	history, err := b.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, pos.ID, history[0].PositionID)
	assert.InDelta(t, -2.0, history[0].NetProfit, 1e-9)

	events := b.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventPositionClosed, events[0].Kind)
	assert.Equal(t, "bot", events[0].Trade.Label)
	assert.Empty(t, b.DrainEvents())

	acct, err := b.Account(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 9998, acct.Balance, 1e-9)
}

func TestBroker_TrailingStopFollowsPrice(t *testing.T) {
	b := newBroker(t)
	ctx := context.Background()
	pos, err := b.ExecuteMarketOrder(ctx, domain.OrderRequest{Symbol: "EURUSD", Side: domain.SideLong, Volume: 1000, StopLossPips: 20})
	require.NoError(t, err)
	require.NoError(t, b.SetTrailingStop(ctx, pos.ID, true))

	b.OnBar(domain.Bar{OpenTime: 1709632860, Open: 1.1, High: 1.1055, Low: 1.1, Close: 1.105})

	open, err := b.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].HasTrailingStop)
	assert.InDelta(t, 1.103, *open[0].StopLoss, 1e-9)
	assert.InDelta(t, 5.0, open[0].NetProfit, 1e-9)
}

func TestBroker_PartialCloseBooksTrade(t *testing.T) {
	b := newBroker(t)
	ctx := context.Background()
	pos, err := b.ExecuteMarketOrder(ctx, domain.OrderRequest{Symbol: "EURUSD", Side: domain.SideLong, Volume: 4000, StopLossPips: 20})
	require.NoError(t, err)
	b.OnBar(domain.Bar{OpenTime: 1709632860, Open: 1.1, High: 1.101, Low: 1.1, Close: 1.101})

	require.NoError(t, b.ModifyVolume(ctx, pos.ID, 3000))

	open, _ := b.Positions(ctx)
	require.Len(t, open, 1)
	assert.Equal(t, 3000.0, open[0].Volume)
	history, _ := b.History(ctx)
	require.Len(t, history, 1)
	assert.Equal(t, 1000.0, history[0].Volume)
	assert.InDelta(t, 1.0, history[0].NetProfit, 1e-9)
	assert.Empty(t, b.DrainEvents())

	require.NoError(t, b.ClosePosition(ctx, pos.ID))
	assert.Len(t, b.DrainEvents(), 1)
	assert.ErrorIs(t, b.ClosePosition(ctx, pos.ID), domain.ErrNotFound)
}

func ptr(v float64) *float64 { return &v }

func TestBroker_PipValueInAccountCurrency(t *testing.T) {
	cases := map[string]struct {
		rates map[string]float64
		want  float64
	}{
		"direct cross":  {rates: map[string]float64{"USDSEK": 10.5}, want: 0.00105},
		"inverse cross": {rates: map[string]float64{"SEKUSD": 0.1}, want: 0.001},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			b, err := paper.NewBroker(paper.Config{
				Balance:    100000,
				Currency:   "SEK",
				Symbol:     domain.SymbolInfo{Name: "EURUSD", QuoteAsset: "USD", PipSize: 0.0001, MinVolume: 1000},
				CrossRates: tc.rates,
			})
			require.NoError(t, err)
			ctx := context.Background()
			b.OnBar(domain.Bar{OpenTime: 1709632800, Open: 1.1, High: 1.1, Low: 1.1, Close: 1.1})

			sym, err := b.Symbol(ctx, "EURUSD")
			require.NoError(t, err)
			assert.InDelta(t, tc.want, sym.PipValue, 1e-12)

			_, err = b.ExecuteMarketOrder(ctx, domain.OrderRequest{Symbol: "EURUSD", Label: "bot", Side: domain.SideLong, Volume: 10000, StopLossPips: 20})
			require.NoError(t, err)
			b.OnBar(domain.Bar{OpenTime: 1709632860, Open: 1.099, High: 1.0995, Low: 1.097, Close: 1.0975})

			history, err := b.History(ctx)
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.InDelta(t, -20*10000*tc.want, history[0].NetProfit, 0.01)
		})
	}
}

func TestBroker_MissingCrossRate(t *testing.T) {
	_, err := paper.NewBroker(paper.Config{
		Currency: "SEK",
		Symbol:   domain.SymbolInfo{Name: "EURUSD", QuoteAsset: "USD", PipSize: 0.0001, MinVolume: 1000},
	})
	assert.Error(t, err)
}
