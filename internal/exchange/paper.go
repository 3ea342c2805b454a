package exchange

import (
	"context"
	"fmt"
	"sync"

	"crypto-quant-trader/internal/logger"
	"crypto-quant-trader/internal/types"
)

// MarketData is the read-only subset of Exchange the paper broker
// delegates to for prices.
type MarketData interface {
	Candles(ctx context.Context, symbol, interval string, lookback int) ([]types.Candle, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// Paper simulates order execution against live market data: real candles
// and prices in, deterministic full fills out. Submissions are keyed by
// idempotency token, so a retried token returns the original fill
// instead of creating a second one.
type Paper struct {
	data MarketData

	mu     sync.Mutex
	orders map[string]types.OrderResult
}

func NewPaper(data MarketData) *Paper {
	return &Paper{data: data, orders: make(map[string]types.OrderResult)}
}

func (p *Paper) Candles(ctx context.Context, symbol, interval string, lookback int) ([]types.Candle, error) {
	return p.data.Candles(ctx, symbol, interval, lookback)
}

func (p *Paper) LastPrice(ctx context.Context, symbol string) (float64, error) {
	return p.data.LastPrice(ctx, symbol)
}

func (p *Paper) SubmitOrder(ctx context.Context, req types.OrderReq) (types.OrderResult, error) {
	if req.Token == "" {
		return types.OrderResult{}, fmt.Errorf("paper order %s: missing idempotency token", req.Symbol)
	}
	if req.Size <= 0 {
		return types.OrderResult{State: types.OrderRejected, Message: "size must be positive"},
			fmt.Errorf("paper order %s: size must be positive", req.Symbol)
	}

	p.mu.Lock()
	if prior, ok := p.orders[req.Token]; ok {
		p.mu.Unlock()
		logger.Debug(ctx, "Paper order replayed from token", "symbol", req.Symbol, "token", req.Token)
		return prior, nil
	}
	p.mu.Unlock()

	price, err := p.data.LastPrice(ctx, req.Symbol)
	if err != nil {
		return types.OrderResult{}, fmt.Errorf("paper order %s: %w", req.Symbol, err)
	}

	result := types.OrderResult{
		OrderID:   req.Token,
		State:     types.OrderFilled,
		FillPrice: price,
		FillSize:  req.Size,
		Message:   "paper fill",
	}

	p.mu.Lock()
	// A concurrent submission with the same token may have won the race.
	if prior, ok := p.orders[req.Token]; ok {
		result = prior
	} else {
		p.orders[req.Token] = result
	}
	p.mu.Unlock()

	logger.Info(ctx, "Paper order filled",
		"symbol", req.Symbol, "side", req.Side, "size", req.Size, "price", price)
	return result, nil
}

func (p *Paper) OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.orders[orderID]; ok {
		return types.OrderStatus{OrderID: orderID, State: r.State, FillPrice: r.FillPrice, FillSize: r.FillSize}, nil
	}
	return types.OrderStatus{OrderID: orderID, State: types.OrderUnknown}, nil
}

func (p *Paper) ClosePosition(ctx context.Context, symbol string, side types.Side, size float64, token string) (types.OrderResult, error) {
	closeSide := types.Sell
	if side == types.Short {
		closeSide = types.Buy
	}
	return p.SubmitOrder(ctx, types.OrderReq{Symbol: symbol, Side: closeSide, Size: size, Token: token})
}
