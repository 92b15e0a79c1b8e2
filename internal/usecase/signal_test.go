package usecase_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/trade_lifecycle/internal/domain"
	"github.com/vitos/trade_lifecycle/internal/usecase"
)

// pullbackBars is an uptrend with a swing high at bar 5, a dip through the MA at bar 8 and the
// current bar opening back above it.
func pullbackBars() []domain.Bar {
	ohlc := [][4]float64{
		{100, 101, 99, 100},
		{101, 103, 100, 102},
		{102, 105, 103, 104},
		{104, 107, 105, 106},
		{106, 109, 107, 108},
		{108, 130, 109, 110},
		{110, 113, 111, 112},
		{112, 115, 113, 114},
		{114, 115, 105, 113},
		{115, 117, 114, 116},
	}
	bars := make([]domain.Bar, len(ohlc))
	for i, v := range ohlc {
		bars[i] = domain.Bar{OpenTime: int64(i * 60), Open: v[0], High: v[1], Low: v[2], Close: v[3]}
	}
	return bars
}

func mirror(bars []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, len(bars))
	for i, b := range bars {
		out[i] = domain.Bar{OpenTime: b.OpenTime, Open: 300 - b.Open, High: 300 - b.Low, Low: 300 - b.High, Close: 300 - b.Close}
	}
	return out
}

func testSignalParams(dir usecase.Direction) usecase.TrendPullbackParams {
	return usecase.TrendPullbackParams{
		Direction: dir, TrendMA: 3, LookbackBars: 5, ConfirmBars: 2, SwingOffsetBars: 2,
		MinRewardPips: 5, StopScale: 1, StopLookbackBars: 3, SwingSearchWindow: 100,
	}
}

var unitPip = domain.SymbolInfo{Name: "TEST", PipSize: 1}

func TestTrendPullback_Long(t *testing.T) {
	sig, err := usecase.NewTrendPullback(testSignalParams(usecase.DirectionLong))
	require.NoError(t, err)

	p := sig.Propose(pullbackBars(), unitPip)
	require.NotNil(t, p)
	assert.Equal(t, domain.SideLong, p.Side)
	assert.InDelta(t, 10, p.StopPips, 1e-9)
	assert.Nil(t, p.TakeProfitPips)
}

func TestTrendPullback_Short(t *testing.T) {
	sig, err := usecase.NewTrendPullback(testSignalParams(usecase.DirectionShort))
	require.NoError(t, err)

	p := sig.Propose(mirror(pullbackBars()), unitPip)
	require.NotNil(t, p)
	assert.Equal(t, domain.SideShort, p.Side)
	assert.InDelta(t, 10, p.StopPips, 1e-9)
}

func TestTrendPullback_DirectionFilter(t *testing.T) {
	long, err := usecase.NewTrendPullback(testSignalParams(usecase.DirectionLong))
	require.NoError(t, err)
	assert.Nil(t, long.Propose(mirror(pullbackBars()), unitPip))

	both, err := usecase.NewTrendPullback(testSignalParams(usecase.DirectionBoth))
	require.NoError(t, err)
	assert.Equal(t, domain.SideLong, both.Propose(pullbackBars(), unitPip).Side)
	assert.Equal(t, domain.SideShort, both.Propose(mirror(pullbackBars()), unitPip).Side)
}

func TestTrendPullback_RewardTooSmall(t *testing.T) {
	params := testSignalParams(usecase.DirectionLong)
	params.MinRewardPips = 20
	sig, err := usecase.NewTrendPullback(params)
	require.NoError(t, err)
	assert.Nil(t, sig.Propose(pullbackBars(), unitPip))
}

func TestTrendPullback_NotEnoughBars(t *testing.T) {
	sig, err := usecase.NewTrendPullback(testSignalParams(usecase.DirectionLong))
	require.NoError(t, err)
	assert.Equal(t, 7, sig.WarmupBars())
	assert.Nil(t, sig.Propose(pullbackBars()[:6], unitPip))
}

func TestTrendPullback_HistoryCoversSwingSearch(t *testing.T) {
	sig, err := usecase.NewTrendPullback(usecase.DefaultTrendPullbackParams())
	require.NoError(t, err)
	assert.Equal(t, 169, sig.WarmupBars())
	assert.Equal(t, 2880+10, sig.HistoryBars())
}

func TestTrendPullback_InvalidParams(t *testing.T) {
	params := testSignalParams("sideways")
	_, err := usecase.NewTrendPullback(params)
	assert.Error(t, err)

	params = testSignalParams(usecase.DirectionLong)
	params.ConfirmBars = 10
	_, err = usecase.NewTrendPullback(params)
	assert.Error(t, err)
}

func TestFindLastHigh_FallingOnlyHasNoSwing(t *testing.T) {
	var bars []domain.Bar
	for i := 0; i < 6; i++ {
		p := 100 - float64(i)
		bars = append(bars, domain.Bar{Open: p, High: p + 1, Low: p - 1, Close: p - 0.5})
	}
	_, ok := usecase.FindLastHigh(bars, 0, 100)
	assert.False(t, ok)

	high, ok := usecase.FindLastHigh(pullbackBars(), 2, 100)
	require.True(t, ok)
	assert.Equal(t, 130.0, high)
}

func TestTradingWindow(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, 3, 5, h, m, 0, 0, time.UTC) }

	w := usecase.TradingWindow{StartHour: 8, StopHour: 20}
	assert.False(t, w.Allows(at(7, 59)))
	assert.True(t, w.Allows(at(8, 0)))
	assert.True(t, w.Allows(at(15, 29)))
	assert.False(t, w.Allows(at(15, 30)))
	assert.False(t, w.Allows(at(16, 59)))
	assert.True(t, w.Allows(at(17, 0)))
	assert.True(t, w.Allows(at(20, 59)))
	assert.False(t, w.Allows(at(21, 0)))

	eu := usecase.TradingWindow{OnlyEUOpen: true}
	assert.True(t, eu.Allows(at(9, 10)))
	assert.False(t, eu.Allows(at(10, 0)))

	us := usecase.TradingWindow{OnlyUSOpen: true}
	assert.True(t, us.Allows(at(15, 45)))
	assert.False(t, us.Allows(at(15, 0)))
}
