package usecase

import (
	"context"
	"fmt"
	"math"

	"github.com/vitos/trade_lifecycle/internal/domain"
	"go.uber.org/zap"
)

// RateSource looks up cross rates for quote conversion.
type RateSource interface {
	CrossRate(ctx context.Context, pair string) (float64, error)
}

// CurrencyConverter turns a risk amount expressed in the quote currency into tradable volume.
// Quote assets without a configured rule are rejected with ErrUnsupportedCurrency.
type CurrencyConverter struct {
	rules map[string]domain.QuoteConversion
	rates RateSource
}

func NewCurrencyConverter(rules map[string]domain.QuoteConversion, rates RateSource) *CurrencyConverter {
	copied := make(map[string]domain.QuoteConversion, len(rules))
	for k, v := range rules {
		copied[k] = v
	}
	return &CurrencyConverter{rules: copied, rates: rates}
}

// Supports reports whether a rule exists for the quote asset.
func (c *CurrencyConverter) Supports(quote string) bool {
	_, ok := c.rules[quote]
	return ok
}

func (c *CurrencyConverter) ToVolume(ctx context.Context, quote string, amount float64) (float64, error) {
	rule, ok := c.rules[quote]
	if !ok {
		return 0, fmt.Errorf("%w: %q", domain.ErrUnsupportedCurrency, quote)
	}

	switch rule.Mode {
	case domain.ConversionFloor:
		return math.Floor(amount), nil
	case domain.ConversionCross:
		if c.rates == nil {
			return 0, fmt.Errorf("no rate source for cross pair %s", rule.Pair)
		}
		rate, err := c.rates.CrossRate(ctx, rule.Pair)
		if err != nil {
			return 0, fmt.Errorf("cross rate %s: %w", rule.Pair, err)
		}
		if rate <= 0 {
			return 0, fmt.Errorf("cross rate %s is not positive: %f", rule.Pair, rate)
		}
		return amount / rate, nil
	default:
		return 0, fmt.Errorf("%w: %q has unknown conversion mode %q", domain.ErrUnsupportedCurrency, quote, rule.Mode)
	}
}

// PositionSizer converts a stop distance into a volume bounded by per-trade risk and margin.
type PositionSizer struct {
	converter *CurrencyConverter
	logger    *zap.Logger
}

func NewPositionSizer(converter *CurrencyConverter, logger *zap.Logger) *PositionSizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PositionSizer{converter: converter, logger: logger}
}

// VolumeForStop sizes a trade whose stop sits stopDistance price units away from entry.
// Expected refusals come back as SizingResult reasons; only configuration and host
// failures are errors.
func (s *PositionSizer) VolumeForStop(
	ctx context.Context,
	stopDistance float64,
	limits domain.RiskLimits,
	acct domain.AccountState,
	sym domain.SymbolInfo,
	dailyLossReached bool,
) (domain.SizingResult, error) {
	if dailyLossReached {
		return domain.SizingResult{Reason: domain.ReasonDailyLossReached}, nil
	}
	if stopDistance <= 0 || math.IsNaN(stopDistance) || math.IsInf(stopDistance, 0) {
		return domain.SizingResult{Reason: domain.ReasonInvalidStopDistance}, nil
	}

	usable := limits.UsableBalance(acct)
	maxRisk := usable * limits.MaxRiskPct / 100
	rawVolume := maxRisk / stopDistance

	volume, err := s.converter.ToVolume(ctx, sym.QuoteAsset, rawVolume)
	if err != nil {
		return domain.SizingResult{}, err
	}

	marginAvailable := usable - acct.UsedMargin
	if sym.MarginPerMinVolume > 0 {
		maxByMargin := math.Floor(marginAvailable/sym.MarginPerMinVolume) * sym.MinVolume
		volume = math.Min(volume, maxByMargin)
	}

	if marginAvailable <= maxRisk {
		s.logger.Info("Not enough margin for planned trade",
			zap.Float64("margin_available", marginAvailable),
			zap.Float64("max_risk", maxRisk))
		return domain.SizingResult{Reason: domain.ReasonInsufficientMargin}, nil
	}

	if volume < sym.MinVolume {
		s.logger.Info("Volume below minimum, stop too wide for risk budget",
			zap.Float64("volume", volume),
			zap.Float64("min_volume", sym.MinVolume),
			zap.Float64("stop_distance", stopDistance))
		return domain.SizingResult{Reason: domain.ReasonStopTooWide}, nil
	}

	return domain.SizingResult{Volume: sym.FloorToMinVolume(volume)}, nil
}
