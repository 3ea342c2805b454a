package interfaces

import (
	"context"

	"crypto-quant-trader/internal/types"
)

// Engine runs one full decision cycle for a symbol.
type Engine interface {
	Step(ctx context.Context, symbol string) (*types.CycleResult, error)
	// CheckExits evaluates stop-loss / take-profit / trailing conditions
	// against the current price, independent of the decision cadence.
	CheckExits(ctx context.Context, symbol string) error
	// CloseAll force-closes every open position with MANUAL reason,
	// preempting concurrently arriving signals.
	CloseAll(ctx context.Context) []types.TradeRecord
	// Positions returns a snapshot of the currently open positions.
	Positions() []types.Position
}
