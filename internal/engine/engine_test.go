package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crypto-quant-trader/internal/ledger"
	"crypto-quant-trader/internal/store"
	"crypto-quant-trader/internal/types"
)

// fakeExchange fills every order at the current price and remembers
// submissions by token.
type fakeExchange struct {
	mu      sync.Mutex
	price   float64
	candles []types.Candle
	orders  map[string]types.OrderResult
	submits int

	failSubmit    bool // error on submit but record the fill venue-side
	statusUnknown bool
}

func newFakeExchange(price float64) *fakeExchange {
	candles := make([]types.Candle, 5)
	for i := range candles {
		candles[i] = types.Candle{Ts: int64(i) * 3600, Open: price, High: price, Low: price, Close: price, Vol: 100}
	}
	return &fakeExchange{price: price, candles: candles, orders: map[string]types.OrderResult{}}
}

func (f *fakeExchange) setPrice(p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = p
	for i := range f.candles {
		f.candles[i].Close = p
	}
}

func (f *fakeExchange) Candles(ctx context.Context, symbol, interval string, lookback int) ([]types.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Candle, len(f.candles))
	copy(out, f.candles)
	return out, nil
}

func (f *fakeExchange) LastPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price, nil
}

func (f *fakeExchange) SubmitOrder(ctx context.Context, req types.OrderReq) (types.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++

	result, ok := f.orders[req.Token]
	if !ok {
		result = types.OrderResult{
			OrderID:   req.Token,
			State:     types.OrderFilled,
			FillPrice: f.price,
			FillSize:  req.Size,
		}
		f.orders[req.Token] = result
	}

	if f.failSubmit {
		return types.OrderResult{}, errors.New("gateway timeout")
	}
	return result, nil
}

func (f *fakeExchange) OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusUnknown {
		return types.OrderStatus{OrderID: orderID, State: types.OrderUnknown}, nil
	}
	if r, ok := f.orders[orderID]; ok {
		return types.OrderStatus{OrderID: orderID, State: r.State, FillPrice: r.FillPrice, FillSize: r.FillSize}, nil
	}
	return types.OrderStatus{OrderID: orderID, State: types.OrderUnknown}, nil
}

func (f *fakeExchange) ClosePosition(ctx context.Context, symbol string, side types.Side, size float64, token string) (types.OrderResult, error) {
	closeSide := types.Sell
	if side == types.Short {
		closeSide = types.Buy
	}
	return f.SubmitOrder(ctx, types.OrderReq{Symbol: symbol, Side: closeSide, Size: size, Token: token})
}

type fakeAdvisor struct {
	mu  sync.Mutex
	rec types.AIRecommendation
	err error
}

func (a *fakeAdvisor) set(rec types.AIRecommendation, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rec, a.err = rec, err
}

func (a *fakeAdvisor) Advise(ctx context.Context, symbol string, snap types.IndicatorSnapshot, sentiment types.SentimentScore) (types.AIRecommendation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec, a.err
}

type fakeSentiment struct{ score types.SentimentScore }

func (s *fakeSentiment) Current(ctx context.Context) types.SentimentScore { return s.score }

func testEngineConfig(t *testing.T) *store.Config {
	cfg := &store.Config{
		Mode:     "DRY_RUN",
		Exchange: "PAPER",
		Symbols:  []string{"BTC/USDT"},
	}
	cfg.Candles.Interval = "1h"
	cfg.Candles.Lookback = 5
	cfg.Risk = store.RiskConfig{
		StopLossPct:        3,
		TakeProfitPct:      5,
		TrailingEnabled:    true,
		TrailingDistPct:    1,
		TradeSize:          0.5,
		ReversalConfidence: 0.7,
	}
	// Indicators and sentiment are silent; the advisor alone drives.
	cfg.Fusion.WeightAdvisor = 1
	cfg.Fusion.ConfidenceFloor = 0.5
	cfg.Retry = store.RetryConfig{MaxAttempts: 2, BaseDelayMs: 1, MaxDelayMs: 2, ReconcileTries: 2}
	cfg.Ledger.Dir = t.TempDir()
	return cfg
}

func newTestEngine(t *testing.T, cfg *store.Config, exch *fakeExchange, adv *fakeAdvisor) (*Engine, *ledger.Ledger) {
	rec, err := ledger.New(cfg.Ledger.Dir)
	require.NoError(t, err)
	return newEngine(cfg, exch, adv, &fakeSentiment{}, rec), rec
}

func buy(conf float64) types.AIRecommendation {
	return types.AIRecommendation{Action: types.Buy, Confidence: conf}
}

func sell(conf float64) types.AIRecommendation {
	return types.AIRecommendation{Action: types.Sell, Confidence: conf}
}

func TestStepOpensSinglePosition(t *testing.T) {
	cfg := testEngineConfig(t)
	exch := newFakeExchange(100)
	adv := &fakeAdvisor{}
	adv.set(buy(0.9), nil)
	eng, _ := newTestEngine(t, cfg, exch, adv)
	ctx := context.Background()

	result, err := eng.Step(ctx, "BTC/USDT")
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)

	positions := eng.Positions()
	require.Len(t, positions, 1)
	pos := positions[0]
	require.Equal(t, types.Long, pos.Side)
	require.InDelta(t, 100.0, pos.EntryPrice, 1e-9)
	require.InDelta(t, 97.0, pos.StopLossPrice, 1e-9)
	require.InDelta(t, 105.0, pos.TakeProfitPrice, 1e-9)
	require.Equal(t, types.StatusOpen, pos.Status)

	// A second bullish cycle must not stack a second position.
	result, err = eng.Step(ctx, "BTC/USDT")
	require.NoError(t, err)
	require.Empty(t, result.Orders)
	require.Len(t, eng.Positions(), 1)
}

func TestStopLossClosesOnce(t *testing.T) {
	cfg := testEngineConfig(t)
	exch := newFakeExchange(100)
	adv := &fakeAdvisor{}
	adv.set(buy(0.9), nil)
	eng, rec := newTestEngine(t, cfg, exch, adv)
	ctx := context.Background()

	_, err := eng.Step(ctx, "BTC/USDT")
	require.NoError(t, err)

	exch.setPrice(96)
	require.NoError(t, eng.CheckExits(ctx, "BTC/USDT"))
	require.Empty(t, eng.Positions())

	trades, err := rec.All()
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, types.ExitStopLoss, trades[0].ExitReason)
	require.InDelta(t, -2.0, trades[0].PnL, 1e-9) // (96-100) * 0.5

	// A second sweep finds nothing to close and records nothing.
	require.NoError(t, eng.CheckExits(ctx, "BTC/USDT"))
	trades, err = rec.All()
	require.NoError(t, err)
	require.Len(t, trades, 1)
}

func TestTakeProfitExit(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.Risk.TrailingEnabled = false
	exch := newFakeExchange(100)
	adv := &fakeAdvisor{}
	adv.set(buy(0.9), nil)
	eng, rec := newTestEngine(t, cfg, exch, adv)
	ctx := context.Background()

	_, err := eng.Step(ctx, "BTC/USDT")
	require.NoError(t, err)

	exch.setPrice(105.5)
	require.NoError(t, eng.CheckExits(ctx, "BTC/USDT"))

	trades, err := rec.All()
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, types.ExitTakeProfit, trades[0].ExitReason)
	require.Greater(t, trades[0].PnL, 0.0)
}

func TestCooldownBlocksReentry(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.Risk.CooldownSeconds = 3600
	exch := newFakeExchange(100)
	adv := &fakeAdvisor{}
	adv.set(buy(0.9), nil)
	eng, _ := newTestEngine(t, cfg, exch, adv)
	ctx := context.Background()

	_, err := eng.Step(ctx, "BTC/USDT")
	require.NoError(t, err)

	exch.setPrice(96)
	require.NoError(t, eng.CheckExits(ctx, "BTC/USDT"))
	require.Empty(t, eng.Positions())

	exch.setPrice(100)
	result, err := eng.Step(ctx, "BTC/USDT")
	require.NoError(t, err)
	require.Empty(t, result.Orders)
	require.Equal(t, "cooldown active", result.Reason)
	require.Empty(t, eng.Positions())
}

func TestReversalClosesPosition(t *testing.T) {
	cfg := testEngineConfig(t)
	exch := newFakeExchange(100)
	adv := &fakeAdvisor{}
	adv.set(buy(0.9), nil)
	eng, rec := newTestEngine(t, cfg, exch, adv)
	ctx := context.Background()

	_, err := eng.Step(ctx, "BTC/USDT")
	require.NoError(t, err)

	// Opposing signal above the reversal floor flips the position flat.
	adv.set(sell(0.9), nil)
	result, err := eng.Step(ctx, "BTC/USDT")
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
	require.Empty(t, eng.Positions())

	trades, err := rec.All()
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, types.ExitReversal, trades[0].ExitReason)

	// Below the floor the position would have survived.
	adv.set(buy(0.9), nil)
	_, err = eng.Step(ctx, "BTC/USDT")
	require.NoError(t, err)
	adv.set(sell(0.6), nil)
	result, err = eng.Step(ctx, "BTC/USDT")
	require.NoError(t, err)
	require.Empty(t, result.Orders)
	require.Len(t, eng.Positions(), 1)
}

func TestAdvisorFailureFallsBackToHold(t *testing.T) {
	cfg := testEngineConfig(t)
	exch := newFakeExchange(100)
	adv := &fakeAdvisor{}
	adv.set(types.AIRecommendation{}, types.ErrAdvisorUnavailable)
	eng, _ := newTestEngine(t, cfg, exch, adv)

	result, err := eng.Step(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.Equal(t, types.Hold, result.Decision.Action)
	require.Empty(t, eng.Positions())
}

func TestCloseAllFlattensEverything(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.Symbols = []string{"BTC/USDT", "ETH/USDT"}
	exch := newFakeExchange(100)
	adv := &fakeAdvisor{}
	adv.set(buy(0.9), nil)
	eng, rec := newTestEngine(t, cfg, exch, adv)
	ctx := context.Background()

	for _, sym := range cfg.Symbols {
		_, err := eng.Step(ctx, sym)
		require.NoError(t, err)
	}
	require.Len(t, eng.Positions(), 2)

	records := eng.CloseAll(ctx)
	require.Len(t, records, 2)
	for _, r := range records {
		require.Equal(t, types.ExitManual, r.ExitReason)
		require.NotEmpty(t, r.ID)
	}
	require.Empty(t, eng.Positions())

	trades, err := rec.All()
	require.NoError(t, err)
	require.Len(t, trades, 2)
}

func TestConcurrentCloseRecordsOneTrade(t *testing.T) {
	cfg := testEngineConfig(t)
	exch := newFakeExchange(100)
	adv := &fakeAdvisor{}
	adv.set(buy(0.9), nil)
	eng, rec := newTestEngine(t, cfg, exch, adv)
	ctx := context.Background()

	_, err := eng.Step(ctx, "BTC/USDT")
	require.NoError(t, err)
	require.Len(t, eng.Positions(), 1)

	// Stop breached; exit sweeps and manual flattens race for the close.
	exch.setPrice(96)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = eng.CheckExits(ctx, "BTC/USDT")
			} else {
				eng.CloseAll(ctx)
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, eng.Positions())
	trades, err := rec.All()
	require.NoError(t, err)
	require.Len(t, trades, 1)
}

// gateAdvisor signals when a call enters Advise and holds it until
// released, so tests can park a decision cycle mid-advice.
type gateAdvisor struct {
	rec     types.AIRecommendation
	entered chan struct{}
	release chan struct{}
}

func (a *gateAdvisor) Advise(ctx context.Context, symbol string, snap types.IndicatorSnapshot, sentiment types.SentimentScore) (types.AIRecommendation, error) {
	a.entered <- struct{}{}
	<-a.release
	return a.rec, nil
}

func TestExitSweepNotBlockedByAdvisor(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.Risk.CooldownSeconds = 3600
	exch := newFakeExchange(100)
	adv := &gateAdvisor{
		rec:     buy(0.9),
		entered: make(chan struct{}, 2),
		release: make(chan struct{}, 2),
	}
	rec, err := ledger.New(cfg.Ledger.Dir)
	require.NoError(t, err)
	eng := newEngine(cfg, exch, adv, &fakeSentiment{}, rec)
	ctx := context.Background()

	// First cycle runs through a released advisor and opens the position.
	adv.release <- struct{}{}
	_, err = eng.Step(ctx, "BTC/USDT")
	require.NoError(t, err)
	require.Len(t, eng.Positions(), 1)
	<-adv.entered

	// Second cycle parks inside the advisor call.
	step2 := make(chan error, 1)
	go func() {
		_, err := eng.Step(ctx, "BTC/USDT")
		step2 <- err
	}()
	<-adv.entered

	// The protective sweep must close the breached stop while the
	// decision cycle is still waiting on the advisor.
	exch.setPrice(96)
	swept := make(chan error, 1)
	go func() { swept <- eng.CheckExits(ctx, "BTC/USDT") }()
	select {
	case err := <-swept:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("exit sweep waited on the advisor call")
	}
	require.Empty(t, eng.Positions())

	// Releasing the parked cycle must not resurrect the position.
	adv.release <- struct{}{}
	require.NoError(t, <-step2)
	require.Empty(t, eng.Positions())

	trades, err := rec.All()
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, types.ExitStopLoss, trades[0].ExitReason)
}

func TestInsufficientCandles(t *testing.T) {
	cfg := testEngineConfig(t)
	exch := newFakeExchange(100)
	exch.candles = exch.candles[:1]
	adv := &fakeAdvisor{}
	adv.set(buy(0.9), nil)
	eng, _ := newTestEngine(t, cfg, exch, adv)

	_, err := eng.Step(context.Background(), "BTC/USDT")
	require.ErrorIs(t, err, types.ErrDataInsufficient)
}
