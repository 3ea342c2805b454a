package engine

import (
	"context"

	"crypto-quant-trader/internal/logger"
	"crypto-quant-trader/internal/store"
	"crypto-quant-trader/internal/types"
)

// riskManager computes protective price levels and decides exits. It is
// pure arithmetic over position state; the engine owns all I/O.
type riskManager struct {
	cfg store.RiskConfig
}

func newRiskManager(cfg store.RiskConfig) *riskManager {
	return &riskManager{cfg: cfg}
}

// initialLevels returns the stop-loss and take-profit prices for a new
// entry. LONG stops sit below entry and targets above; SHORT mirrors.
func (rm *riskManager) initialLevels(side types.Side, entry float64) (stopLoss, takeProfit float64) {
	sl := rm.cfg.StopLossPct / 100.0
	tp := rm.cfg.TakeProfitPct / 100.0
	if side == types.Short {
		return entry * (1 + sl), entry * (1 - tp)
	}
	return entry * (1 - sl), entry * (1 + tp)
}

// ratchetStop advances the trailing watermark and tightens the stop when
// price has moved favorably. The stop only ever moves toward price,
// never away: an adverse move leaves both watermark and stop untouched.
func (rm *riskManager) ratchetStop(ctx context.Context, p *types.Position, price float64) bool {
	if !rm.cfg.TrailingEnabled {
		return false
	}

	dist := rm.cfg.TrailingDistPct / 100.0
	if p.Side == types.Long {
		if price <= p.TrailingWatermark {
			return false
		}
		p.TrailingWatermark = price
		candidate := price * (1 - dist)
		if candidate > p.StopLossPrice {
			old := p.StopLossPrice
			p.StopLossPrice = candidate
			logger.Debug(ctx, "Trailing stop tightened",
				"symbol", p.Symbol, "old_stop", old, "new_stop", candidate, "watermark", price)
			return true
		}
		return false
	}

	if price >= p.TrailingWatermark {
		return false
	}
	p.TrailingWatermark = price
	candidate := price * (1 + dist)
	if candidate < p.StopLossPrice {
		old := p.StopLossPrice
		p.StopLossPrice = candidate
		logger.Debug(ctx, "Trailing stop tightened",
			"symbol", p.Symbol, "old_stop", old, "new_stop", candidate, "watermark", price)
		return true
	}
	return false
}

// checkExit reports whether the current price breaches a protective
// level. The stop check runs before the target check, so a bar that
// somehow spans both resolves to the loss-limiting exit.
func (rm *riskManager) checkExit(p types.Position, price float64) (types.ExitReason, bool) {
	if p.Side == types.Long {
		if price <= p.StopLossPrice {
			if p.TrailingWatermark > p.EntryPrice {
				return types.ExitTrailingStop, true
			}
			return types.ExitStopLoss, true
		}
		if price >= p.TakeProfitPrice {
			return types.ExitTakeProfit, true
		}
		return "", false
	}

	if price >= p.StopLossPrice {
		if p.TrailingWatermark < p.EntryPrice {
			return types.ExitTrailingStop, true
		}
		return types.ExitStopLoss, true
	}
	if price <= p.TakeProfitPrice {
		return types.ExitTakeProfit, true
	}
	return "", false
}

// isReversal reports whether a decision opposes the open position with
// enough conviction to flip it.
func (rm *riskManager) isReversal(p types.Position, d types.Decision) bool {
	if d.Confidence < rm.cfg.ReversalConfidence {
		return false
	}
	return (p.Side == types.Long && d.Action == types.Sell) ||
		(p.Side == types.Short && d.Action == types.Buy)
}

// realizedPnL computes the signed profit for a close at exitPrice.
func realizedPnL(p types.Position, exitPrice float64) float64 {
	return (exitPrice - p.EntryPrice) * p.Size * p.Side.Sign()
}
