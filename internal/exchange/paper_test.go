package exchange

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"crypto-quant-trader/internal/types"
)

type staticData struct {
	price float64
}

func (s *staticData) Candles(ctx context.Context, symbol, interval string, lookback int) ([]types.Candle, error) {
	out := make([]types.Candle, lookback)
	for i := range out {
		out[i] = types.Candle{Ts: int64(i), Close: s.price}
	}
	return out, nil
}

func (s *staticData) LastPrice(ctx context.Context, symbol string) (float64, error) {
	return s.price, nil
}

func TestPaperFillsAtMarket(t *testing.T) {
	p := NewPaper(&staticData{price: 42000})
	ctx := context.Background()

	result, err := p.SubmitOrder(ctx, types.OrderReq{Symbol: "BTC/USDT", Side: types.Buy, Size: 0.1, Token: "tok-1"})
	require.NoError(t, err)
	require.Equal(t, types.OrderFilled, result.State)
	require.InDelta(t, 42000.0, result.FillPrice, 1e-9)
	require.InDelta(t, 0.1, result.FillSize, 1e-9)

	status, err := p.OrderStatus(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, types.OrderFilled, status.State)
}

func TestPaperReplaysToken(t *testing.T) {
	data := &staticData{price: 100}
	p := NewPaper(data)
	ctx := context.Background()

	first, err := p.SubmitOrder(ctx, types.OrderReq{Symbol: "BTC/USDT", Side: types.Buy, Size: 1, Token: "tok-dup"})
	require.NoError(t, err)

	// Price moves, but the replay returns the original fill.
	data.price = 120
	second, err := p.SubmitOrder(ctx, types.OrderReq{Symbol: "BTC/USDT", Side: types.Buy, Size: 1, Token: "tok-dup"})
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.InDelta(t, 100.0, second.FillPrice, 1e-9)
}

func TestPaperConcurrentSameToken(t *testing.T) {
	p := NewPaper(&staticData{price: 100})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]types.OrderResult, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := p.SubmitOrder(ctx, types.OrderReq{Symbol: "BTC/USDT", Side: types.Buy, Size: 1, Token: "tok-race"})
			require.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	for _, r := range results[1:] {
		require.Equal(t, results[0], r)
	}
}

func TestPaperRejectsBadRequests(t *testing.T) {
	p := NewPaper(&staticData{price: 100})
	ctx := context.Background()

	_, err := p.SubmitOrder(ctx, types.OrderReq{Symbol: "BTC/USDT", Side: types.Buy, Size: 1})
	require.Error(t, err)

	_, err = p.SubmitOrder(ctx, types.OrderReq{Symbol: "BTC/USDT", Side: types.Buy, Size: 0, Token: "tok"})
	require.Error(t, err)
}

func TestPaperUnknownOrder(t *testing.T) {
	p := NewPaper(&staticData{price: 100})
	status, err := p.OrderStatus(context.Background(), "never-seen")
	require.NoError(t, err)
	require.Equal(t, types.OrderUnknown, status.State)
}

func TestPaperClosePosition(t *testing.T) {
	p := NewPaper(&staticData{price: 100})
	ctx := context.Background()

	result, err := p.ClosePosition(ctx, "BTC/USDT", types.Long, 0.5, "tok-close")
	require.NoError(t, err)
	require.Equal(t, types.OrderFilled, result.State)
	require.InDelta(t, 0.5, result.FillSize, 1e-9)
}

func TestSymbolNormalization(t *testing.T) {
	require.Equal(t, "BTCUSDT", binanceSymbol("BTC/USDT"))
	require.Equal(t, "BTCUSDT", binanceSymbol("btc-usdt"))
	require.Equal(t, "BTC-USDT", okxInstID("BTC/USDT"))
	require.Equal(t, "BTC-USDT", okxInstID("BTCUSDT"))
	require.Equal(t, "ETH-BTC", okxInstID("ETHBTC"))
	require.Equal(t, "5m", okxBar("5m"))
	require.Equal(t, "1H", okxBar("1h"))
}
