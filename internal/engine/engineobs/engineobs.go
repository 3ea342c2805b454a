package engineobs

import (
	"context"
	"time"

	"crypto-quant-trader/internal/interfaces"
	"crypto-quant-trader/internal/logger"
	"crypto-quant-trader/internal/trace"
	"crypto-quant-trader/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) Step(ctx context.Context, symbol string) (*types.CycleResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Step")
	defer span.End()

	start := time.Now()

	logger.Info(ctx, "Starting decision cycle",
		"symbol", symbol,
	)

	result, err := oe.engine.Step(ctx, symbol)
	if err != nil {
		logger.ErrorWithErr(ctx, "Decision cycle failed", err,
			"symbol", symbol,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	logger.Info(ctx, "Decision cycle completed",
		"symbol", symbol,
		"action", result.Decision.Action,
		"confidence", result.Decision.Confidence,
		"reason", result.Reason,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

func (oe *observableEngine) CheckExits(ctx context.Context, symbol string) error {
	ctx, span := trace.StartSpan(ctx, "engine.CheckExits")
	defer span.End()

	if err := oe.engine.CheckExits(ctx, symbol); err != nil {
		logger.ErrorWithErr(ctx, "Exit check failed", err, "symbol", symbol)
		return err
	}
	return nil
}

func (oe *observableEngine) CloseAll(ctx context.Context) []types.TradeRecord {
	ctx, span := trace.StartSpan(ctx, "engine.CloseAll")
	defer span.End()

	start := time.Now()
	records := oe.engine.CloseAll(ctx)

	logger.Info(ctx, "Close-all completed",
		"closed", len(records),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return records
}

func (oe *observableEngine) Positions() []types.Position {
	return oe.engine.Positions()
}
