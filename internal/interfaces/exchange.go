package interfaces

import (
	"context"

	"crypto-quant-trader/internal/types"
)

// Exchange is the capability set every backing exchange must expose. The
// set is identical regardless of variant; the concrete client is chosen
// once at configuration time.
type Exchange interface {
	// Candles returns up to lookback ordered bars for the symbol.
	Candles(ctx context.Context, symbol, interval string, lookback int) ([]types.Candle, error)
	// LastPrice returns the most recent traded price.
	LastPrice(ctx context.Context, symbol string) (float64, error)
	// SubmitOrder places a market order. req.Token is the idempotency
	// token: the same token must never yield two fills.
	SubmitOrder(ctx context.Context, req types.OrderReq) (types.OrderResult, error)
	// OrderStatus resolves the fill state of a previously submitted order.
	OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error)
	// ClosePosition market-closes the full holding for the symbol.
	ClosePosition(ctx context.Context, symbol string, side types.Side, size float64, token string) (types.OrderResult, error)
}
