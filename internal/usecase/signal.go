package usecase

import (
	"fmt"
	"math"

	"github.com/vitos/trade_lifecycle/internal/domain"
)

// Proposal is an entry the signal policy wants the engine to size and place.
type Proposal struct {
	Side           domain.Side
	StopPips       float64
	TakeProfitPips *float64
	Detail         string
}

// Signal decides entries from the bar window. The last bar is the one currently forming; only its
// open is used.
type Signal interface {
	Propose(bars []domain.Bar, sym domain.SymbolInfo) *Proposal
	// WarmupBars is the number of bars needed before Propose can return anything.
	WarmupBars() int
	// HistoryBars is the number of bars Propose looks at. The engine keeps at least this many.
	HistoryBars() int
}

type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionBoth  Direction = "both"
)

// TrendPullbackParams configure TrendPullback. Defaults mirror what the strategy was tuned with.
type TrendPullbackParams struct {
	Direction         Direction `yaml:"direction"`
	TrendMA           int       `yaml:"trend_ma"`
	LookbackBars      int       `yaml:"lookback_bars"`
	ConfirmBars       int       `yaml:"confirm_bars"`
	SwingOffsetBars   int       `yaml:"swing_offset_bars"`
	MinRewardPips     float64   `yaml:"min_reward_pips"`
	StopScale         float64   `yaml:"stop_scale"`
	StopLookbackBars  int       `yaml:"stop_lookback_bars"`
	SwingSearchWindow int       `yaml:"swing_search_window"`
}

func DefaultTrendPullbackParams() TrendPullbackParams {
	return TrendPullbackParams{
		Direction:         DirectionLong,
		TrendMA:           50,
		LookbackBars:      120,
		ConfirmBars:       60,
		SwingOffsetBars:   10,
		MinRewardPips:     50,
		StopScale:         1.5,
		StopLookbackBars:  10,
		SwingSearchWindow: 48 * 60,
	}
}

// TrendPullback enters in the direction of a moving-average trend after price dips through the
// average and opens back on the trend side.
type TrendPullback struct {
	p TrendPullbackParams
}

func NewTrendPullback(p TrendPullbackParams) (*TrendPullback, error) {
	switch p.Direction {
	case DirectionLong, DirectionShort, DirectionBoth:
	default:
		return nil, fmt.Errorf("unknown direction %q", p.Direction)
	}
	if p.TrendMA < 3 {
		return nil, fmt.Errorf("trend_ma must be at least 3, got %d", p.TrendMA)
	}
	if p.LookbackBars < 3 || p.ConfirmBars < 0 || p.ConfirmBars > p.LookbackBars {
		return nil, fmt.Errorf("confirm_bars %d must be within lookback_bars %d", p.ConfirmBars, p.LookbackBars)
	}
	if p.StopScale <= 0 {
		return nil, fmt.Errorf("stop_scale must be positive")
	}
	if p.StopLookbackBars <= 0 {
		p.StopLookbackBars = 10
	}
	if p.SwingSearchWindow <= 0 {
		p.SwingSearchWindow = 48 * 60
	}
	return &TrendPullback{p: p}, nil
}

func (s *TrendPullback) WarmupBars() int {
	return s.p.LookbackBars + s.p.TrendMA - 1
}

// HistoryBars covers the swing search behind the offset as well as the warm-up.
func (s *TrendPullback) HistoryBars() int {
	n := s.WarmupBars()
	if swing := s.p.SwingSearchWindow + s.p.SwingOffsetBars; swing > n {
		n = swing
	}
	if s.p.StopLookbackBars > n {
		n = s.p.StopLookbackBars
	}
	return n
}

func (s *TrendPullback) Propose(bars []domain.Bar, sym domain.SymbolInfo) *Proposal {
	if len(bars) < s.WarmupBars() || len(bars) < 3 || sym.PipSize <= 0 {
		return nil
	}
	ma := sma(bars, s.p.TrendMA)

	if s.p.Direction == DirectionLong || s.p.Direction == DirectionBoth {
		if p := s.long(bars, ma, sym); p != nil {
			return p
		}
	}
	if s.p.Direction == DirectionShort || s.p.Direction == DirectionBoth {
		return s.short(bars, ma, sym)
	}
	return nil
}

func (s *TrendPullback) long(bars []domain.Bar, ma []float64, sym domain.SymbolInfo) *Proposal {
	n := len(bars)
	above := 0
	for i := n - s.p.LookbackBars; i < n; i++ {
		if bars[i].Close > ma[i] {
			above++
		}
	}
	if above <= s.p.ConfirmBars {
		return nil
	}

	pulledBack := bars[n-2].Low < ma[n-2] || bars[n-3].Low < ma[n-3]
	if !pulledBack || bars[n-1].Open <= ma[n-1] {
		return nil
	}

	high, ok := FindLastHigh(bars, s.p.SwingOffsetBars, s.p.SwingSearchWindow)
	if !ok {
		return nil
	}

	open := bars[n-1].Open
	minLow := math.Inf(1)
	for _, b := range tail(bars, s.p.StopLookbackBars) {
		minLow = math.Min(minLow, b.Low)
	}

	reward := (high - open - sym.Spread) / sym.PipSize
	if reward < s.p.MinRewardPips {
		return nil
	}
	return &Proposal{
		Side:     domain.SideLong,
		StopPips: (open - minLow + sym.Spread) * s.p.StopScale / sym.PipSize,
		Detail:   fmt.Sprintf("pullback in uptrend, %d/%d closes above MA, reward %.1f pips", above, s.p.LookbackBars, reward),
	}
}

func (s *TrendPullback) short(bars []domain.Bar, ma []float64, sym domain.SymbolInfo) *Proposal {
	n := len(bars)
	below := 0
	for i := n - s.p.LookbackBars; i < n; i++ {
		if bars[i].Close < ma[i] {
			below++
		}
	}
	if below <= s.p.ConfirmBars {
		return nil
	}

	pulledBack := bars[n-2].High > ma[n-2] || bars[n-3].High > ma[n-3]
	if !pulledBack || bars[n-1].Open >= ma[n-1] {
		return nil
	}

	low, ok := FindLastLow(bars, s.p.SwingOffsetBars, s.p.SwingSearchWindow)
	if !ok {
		return nil
	}

	open := bars[n-1].Open
	maxHigh := math.Inf(-1)
	for _, b := range tail(bars, s.p.StopLookbackBars) {
		maxHigh = math.Max(maxHigh, b.High)
	}

	reward := (open - low - sym.Spread) / sym.PipSize
	if reward < s.p.MinRewardPips {
		return nil
	}
	return &Proposal{
		Side:     domain.SideShort,
		StopPips: (maxHigh - open + sym.Spread) * s.p.StopScale / sym.PipSize,
		Detail:   fmt.Sprintf("pullback in downtrend, %d/%d closes below MA, reward %.1f pips", below, s.p.LookbackBars, reward),
	}
}

// FindLastHigh walks back from offset bars before the end and returns the most recent swing high
// that was preceded by a close lower than the previous bar's close. ok is false when price has only
// been rising within the window.
func FindLastHigh(bars []domain.Bar, offset, window int) (float64, bool) {
	if len(bars) < 2 {
		return 0, false
	}
	last := bars[len(bars)-2]
	history := tail(skipLast(bars, offset), window)

	highest := 0.0
	for i := len(history) - 1; i >= 0; i-- {
		b := history[i]
		if b.High > highest {
			highest = b.High
		} else if highest > last.High && b.Close < last.Close {
			return highest, true
		}
	}
	return 0, false
}

// FindLastLow mirrors FindLastHigh for downtrends.
func FindLastLow(bars []domain.Bar, offset, window int) (float64, bool) {
	if len(bars) < 2 {
		return 0, false
	}
	last := bars[len(bars)-2]
	history := tail(skipLast(bars, offset), window)

	lowest := math.MaxFloat64
	for i := len(history) - 1; i >= 0; i-- {
		b := history[i]
		if b.Low < lowest {
			lowest = b.Low
		} else if lowest < last.Low && b.Close > last.Close {
			return lowest, true
		}
	}
	return 0, false
}

// sma returns the simple moving average of closes aligned with bars. Entries before the first full
// period are NaN.
func sma(bars []domain.Bar, period int) []float64 {
	out := make([]float64, len(bars))
	sum := 0.0
	for i, b := range bars {
		sum += b.Close
		if i >= period {
			sum -= bars[i-period].Close
		}
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(period)
	}
	return out
}

func tail(bars []domain.Bar, n int) []domain.Bar {
	if n <= 0 || n >= len(bars) {
		return bars
	}
	return bars[len(bars)-n:]
}

func skipLast(bars []domain.Bar, n int) []domain.Bar {
	if n <= 0 {
		return bars
	}
	if n >= len(bars) {
		return nil
	}
	return bars[:len(bars)-n]
}
