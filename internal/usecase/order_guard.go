package usecase

import (
	"context"
	"fmt"

	"github.com/vitos/trade_lifecycle/internal/domain"
	"go.uber.org/zap"
)

// OrderGuard places a market order once and checks that the host attached the requested
// protection. An unprotected position is closed and the engine halts.
type OrderGuard struct {
	exec   domain.ExecutionSurface
	halter *Halter
	logger *zap.Logger
}

func NewOrderGuard(exec domain.ExecutionSurface, halter *Halter, logger *zap.Logger) *OrderGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderGuard{exec: exec, halter: halter, logger: logger}
}

func (g *OrderGuard) Halted() bool {
	return g.halter.Halted()
}

// PlaceAndVerify executes req and returns the resulting position. There are no retries.
func (g *OrderGuard) PlaceAndVerify(ctx context.Context, req domain.OrderRequest) (*domain.OpenPosition, error) {
	if err := g.halter.Err(); err != nil {
		return nil, err
	}
	if req.Side != domain.SideLong && req.Side != domain.SideShort {
		return nil, fmt.Errorf("invalid side: %s", req.Side)
	}

	pos, err := g.exec.ExecuteMarketOrder(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute market order: %w", err)
	}
	if pos == nil {
		return nil, fmt.Errorf("execute market order: host returned no position")
	}

	if pos.StopLoss == nil {
		g.logger.Error("Failed to set up stop loss, the distance is probably too close. Closing position and halting",
			zap.String("position_id", pos.ID),
			zap.Float64("stop_loss_pips", req.StopLossPips))
		metricProtectionFailures.WithLabelValues("stop_loss").Inc()
		return nil, g.closeAndHalt(ctx, pos.ID, fmt.Errorf("%w: stop loss missing on position %s", domain.ErrProtectionNotAttached, pos.ID))
	}

	if req.TakeProfitPips != nil && pos.TakeProfit == nil {
		g.logger.Error("Failed to set up take profit, the distance is probably too close. Closing position and halting",
			zap.String("position_id", pos.ID),
			zap.Float64("take_profit_pips", *req.TakeProfitPips))
		metricProtectionFailures.WithLabelValues("take_profit").Inc()
		return nil, g.closeAndHalt(ctx, pos.ID, fmt.Errorf("%w: take profit missing on position %s", domain.ErrProtectionNotAttached, pos.ID))
	}

	metricOrdersPlaced.WithLabelValues(string(req.Side)).Inc()
	g.logger.Info("Order placed and verified",
		zap.String("position_id", pos.ID),
		zap.String("side", string(pos.Side)),
		zap.Float64("volume", pos.Volume),
		zap.Float64("entry", pos.EntryPrice),
		zap.Float64("stop_loss", *pos.StopLoss))
	return pos, nil
}

// closeAndHalt closes the position and trips the halt latch. The close error, if any, is logged;
// the halt happens regardless.
func closeAndHalt(ctx context.Context, exec domain.ExecutionSurface, halter *Halter, logger *zap.Logger, positionID string, cause error) error {
	if err := exec.ClosePosition(ctx, positionID); err != nil {
		logger.Error("Failed to close unprotected position", zap.String("position_id", positionID), zap.Error(err))
	}
	return halter.Trip(cause)
}

func (g *OrderGuard) closeAndHalt(ctx context.Context, positionID string, cause error) error {
	return closeAndHalt(ctx, g.exec, g.halter, g.logger, positionID, cause)
}
