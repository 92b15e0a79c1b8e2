package cmd

import (
	"github.com/vitos/trade_lifecycle/internal/config"
	"github.com/vitos/trade_lifecycle/internal/domain"
	"github.com/vitos/trade_lifecycle/internal/usecase"
	"go.uber.org/zap"
)

type host interface {
	domain.AccountProvider
	domain.ExecutionSurface
}

type engineParts struct {
	host       host
	store      domain.PositionStateStore
	journal    domain.DecisionJournal
	sink       domain.LivenessSink
	simulation bool
}

func buildEngine(cfg *config.Config, parts engineParts, log *zap.Logger) (*usecase.Engine, *usecase.LivenessReporter, error) {
	signal, err := usecase.NewTrendPullback(cfg.Signal)
	if err != nil {
		return nil, nil, err
	}

	halter := &usecase.Halter{}
	day := usecase.NewTradingDay(cfg.Engine.TimeZone)
	converter := usecase.NewCurrencyConverter(cfg.QuoteConversions, parts.host)
	liveness := usecase.NewLivenessReporter(parts.sink, parts.simulation, log.Named("liveness"))
	lifecycle := usecase.NewLifecycleManager(
		parts.store, parts.host, halter, cfg.LifecycleParams(), parts.simulation, log.Named("lifecycle"),
	)

	engine, err := usecase.NewEngine(usecase.EngineConfig{
		Label:     cfg.Engine.Label,
		Symbol:    cfg.Engine.Symbol,
		Limits:    cfg.RiskLimits(),
		Window:    cfg.TradingWindow,
		BarWindow: cfg.Engine.BarWindow,
		QueueSize: cfg.Engine.QueueSize,
	}, usecase.EngineDeps{
		Account:   parts.host,
		Journal:   parts.journal,
		Gate:      usecase.NewRiskGate(day, cfg.Risk.ProjectOpenPositions),
		Sizer:     usecase.NewPositionSizer(converter, log.Named("sizer")),
		Guard:     usecase.NewOrderGuard(parts.host, halter, log.Named("guard")),
		Lifecycle: lifecycle,
		Liveness:  liveness,
		Signal:    signal,
		Halter:    halter,
		Day:       day,
	}, log.Named("engine"))
	if err != nil {
		return nil, nil, err
	}
	return engine, liveness, nil
}
