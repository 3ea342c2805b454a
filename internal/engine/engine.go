package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-quant-trader/internal/fusion"
	"crypto-quant-trader/internal/indicator"
	"crypto-quant-trader/internal/interfaces"
	"crypto-quant-trader/internal/ledger"
	"crypto-quant-trader/internal/logger"
	"crypto-quant-trader/internal/store"
	"crypto-quant-trader/internal/tradelog"
	"crypto-quant-trader/internal/types"
)

// sentimentSource is the slice of the social service the engine needs.
type sentimentSource interface {
	Current(ctx context.Context) types.SentimentScore
}

// Engine runs the full decision cycle for each symbol: market data in,
// indicators and sentiment and advisory fused into one Decision, then
// position transitions through the risk rules. All position mutation
// for a symbol happens under that symbol's lock.
type Engine struct {
	cfg       *store.Config
	exch      interfaces.Exchange
	advisor   interfaces.Advisor
	sentiment sentimentSource
	snapshots *indicator.Engine
	fuser     *fusion.Aggregator
	positions *positionManager
	risk      *riskManager
	executor  *orderExecutor
	records   *ledger.Ledger
}

func newEngine(cfg *store.Config, exch interfaces.Exchange, adv interfaces.Advisor, sent sentimentSource, rec *ledger.Ledger) *Engine {
	return &Engine{
		cfg:       cfg,
		exch:      exch,
		advisor:   adv,
		sentiment: sent,
		snapshots: indicator.New(cfg),
		fuser:     fusion.New(cfg),
		positions: newPositionManager(),
		risk:      newRiskManager(cfg.Risk),
		executor:  newOrderExecutor(exch, cfg.Retry),
		records:   rec,
	}
}

// Step runs one full decision cycle for the symbol. The symbol lock is
// taken only around position mutation; candle fetch, indicator math and
// the advisor call run outside it so the protective exit sweep is never
// queued behind a slow advisor.
func (e *Engine) Step(ctx context.Context, symbol string) (*types.CycleResult, error) {
	candles, err := e.exch.Candles(ctx, symbol, e.cfg.Candles.Interval, e.cfg.Candles.Lookback)
	if err != nil {
		return nil, err
	}
	if len(candles) < 2 {
		return nil, fmt.Errorf("%w: %d candles for %s", types.ErrDataInsufficient, len(candles), symbol)
	}

	latest := candles[len(candles)-1]
	price := latest.Close

	lock := e.positions.lock(symbol)

	// Protective exits run before any new decision so a breached stop is
	// never outwaited by a slow advisor call.
	lock.Lock()
	exit, closed := e.runExitChecks(ctx, symbol, price)
	lock.Unlock()
	if closed {
		return &types.CycleResult{Symbol: symbol, Price: price, Time: latest.Ts,
			Orders: exit.orders, Reason: exit.reason}, nil
	}

	snap := e.snapshots.Snapshot(candles)

	sentiment := e.sentiment.Current(ctx)

	rec, err := e.advisor.Advise(ctx, symbol, snap, sentiment)
	if err != nil {
		if !errors.Is(err, types.ErrAdvisorUnavailable) {
			return nil, err
		}
		logger.Warn(ctx, "Advisor unavailable, using neutral recommendation", "symbol", symbol, "error", err)
		rec = types.Neutral()
	}

	decision := e.fuser.Fuse(symbol, snap, sentiment, rec)
	logger.Decision(ctx, symbol, string(decision.Action), decision.Confidence, decision.Reason)
	_ = tradelog.AppendDecision(tradelog.DecisionEntry{
		Symbol:     symbol,
		Action:     decision.Action,
		Confidence: decision.Confidence,
		Price:      price,
		Scores:     decision.Scores,
		Reason:     decision.Reason,
	})

	result := &types.CycleResult{Symbol: symbol, Decision: decision, Price: price, Time: latest.Ts, Reason: decision.Reason}

	// The advisor call ran unlocked, so the position state is re-read
	// under the lock before acting on the decision.
	lock.Lock()
	defer lock.Unlock()

	if pos, ok := e.positions.get(symbol); ok {
		if e.risk.isReversal(pos, decision) {
			order, _, err := e.closeLocked(ctx, pos, price, types.ExitReversal)
			if err != nil {
				return nil, err
			}
			result.Orders = append(result.Orders, order)
			result.Reason = "reversal exit"
		}
		// A same-direction or low-conviction decision leaves the open
		// position to the risk rules.
		return result, nil
	}

	if decision.Action == types.Hold {
		return result, nil
	}

	now := time.Now()
	if e.positions.inCooldown(symbol, now, e.cfg.Cooldown()) {
		logger.Info(ctx, "Entry skipped, cooldown active", "symbol", symbol, "action", decision.Action)
		result.Reason = "cooldown active"
		return result, nil
	}

	order, err := e.openLocked(ctx, symbol, decision, now)
	if err != nil {
		var oerr *types.OrderExecutionError
		if errors.As(err, &oerr) {
			logger.ErrorWithErr(ctx, "Entry order failed", err, "symbol", symbol)
			result.Reason = "entry failed: " + err.Error()
			return result, nil
		}
		return nil, err
	}
	result.Orders = append(result.Orders, order)
	return result, nil
}

// openLocked submits the entry order and registers the position sized by
// the actual fill. Caller holds the symbol lock.
func (e *Engine) openLocked(ctx context.Context, symbol string, d types.Decision, now time.Time) (types.OrderResult, error) {
	order, err := e.executor.submit(ctx, symbol, d.Action, e.cfg.Risk.TradeSize, d.Reason)
	if err != nil {
		return order, err
	}

	side := types.Long
	if d.Action == types.Sell {
		side = types.Short
	}

	stop, target := e.risk.initialLevels(side, order.FillPrice)
	pos := types.Position{
		Symbol:            symbol,
		Side:              side,
		EntryPrice:        order.FillPrice,
		Size:              order.FillSize,
		EntryTime:         now,
		StopLossPrice:     stop,
		TakeProfitPrice:   target,
		TrailingWatermark: order.FillPrice,
	}
	if !e.positions.add(pos) {
		logger.Error(ctx, "Entry raced an existing position", "symbol", symbol)
	}

	logger.Info(ctx, "Position opened",
		"symbol", symbol, "side", side, "size", pos.Size,
		"entry", pos.EntryPrice, "stop", stop, "target", target,
		"confidence", d.Confidence)
	return order, nil
}

type exitOutcome struct {
	orders []types.OrderResult
	reason string
}

// runExitChecks ratchets the trailing stop and closes the position when
// a protective level is breached. Caller holds the symbol lock.
func (e *Engine) runExitChecks(ctx context.Context, symbol string, price float64) (exitOutcome, bool) {
	pos, ok := e.positions.get(symbol)
	if !ok {
		return exitOutcome{}, false
	}

	// The watermark can advance even when the stop does not move, so the
	// state is stored back either way.
	e.risk.ratchetStop(ctx, &pos, price)
	e.positions.update(pos)

	reason, hit := e.risk.checkExit(pos, price)
	if !hit {
		return exitOutcome{}, false
	}

	logger.Risk(ctx, symbol, string(reason),
		"price", price, "stop", pos.StopLossPrice, "target", pos.TakeProfitPrice)

	order, _, err := e.closeLocked(ctx, pos, price, reason)
	if err != nil {
		logger.ErrorWithErr(ctx, "Protective exit failed, position stays open", err, "symbol", symbol)
		return exitOutcome{}, false
	}
	return exitOutcome{orders: []types.OrderResult{order}, reason: string(reason)}, true
}

// closeLocked market-closes the position and appends exactly one ledger
// record. An unresolved close leaves the position open so the next check
// retries; nothing is recorded until the fill is confirmed.
func (e *Engine) closeLocked(ctx context.Context, pos types.Position, price float64, reason types.ExitReason) (types.OrderResult, types.TradeRecord, error) {
	order, err := e.executor.closePosition(ctx, pos, string(reason))
	if err != nil {
		return order, types.TradeRecord{}, err
	}

	final, ok := e.positions.close(pos.Symbol, time.Now())
	if !ok {
		// Another path already closed it; the ledger row exists.
		return order, types.TradeRecord{}, nil
	}

	exitPrice := order.FillPrice
	if exitPrice == 0 {
		exitPrice = price
	}
	pnl := realizedPnL(final, exitPrice)
	if fee := e.cfg.Ledger.FeePct / 100.0; fee > 0 {
		pnl -= (final.EntryPrice + exitPrice) * final.Size * fee
	}

	rec := types.TradeRecord{
		Symbol:     final.Symbol,
		Side:       final.Side,
		Size:       final.Size,
		EntryPrice: final.EntryPrice,
		EntryTime:  final.EntryTime,
		ExitPrice:  exitPrice,
		ExitTime:   time.Now(),
		PnL:        pnl,
		ExitReason: reason,
	}
	rec, lerr := e.records.Append(rec)
	if lerr != nil {
		logger.ErrorWithErr(ctx, "Failed to append trade record", lerr, "symbol", final.Symbol)
	}

	logger.Info(ctx, "Position closed",
		"symbol", final.Symbol, "side", final.Side, "exit_reason", reason,
		"entry", final.EntryPrice, "exit", exitPrice, "pnl", pnl)
	return order, rec, nil
}

// CheckExits is the fast protective sweep between full cycles: price
// only, no indicators, no advisor.
func (e *Engine) CheckExits(ctx context.Context, symbol string) error {
	lock := e.positions.lock(symbol)
	lock.Lock()
	defer lock.Unlock()

	if !e.positions.has(symbol) {
		return nil
	}
	price, err := e.exch.LastPrice(ctx, symbol)
	if err != nil {
		return err
	}
	e.runExitChecks(ctx, symbol, price)
	return nil
}

// CloseAll market-closes every open position, used at shutdown.
// Failures are logged and skipped so one stuck symbol cannot strand
// the rest.
func (e *Engine) CloseAll(ctx context.Context) []types.TradeRecord {
	var records []types.TradeRecord
	for _, symbol := range e.positions.openSymbols() {
		lock := e.positions.lock(symbol)
		lock.Lock()

		pos, ok := e.positions.get(symbol)
		if !ok {
			lock.Unlock()
			continue
		}
		price, err := e.exch.LastPrice(ctx, symbol)
		if err != nil {
			price = pos.EntryPrice
		}
		_, rec, err := e.closeLocked(ctx, pos, price, types.ExitManual)
		if err != nil {
			logger.ErrorWithErr(ctx, "Close-all failed for symbol", err, "symbol", symbol)
		} else if rec.ID != "" {
			records = append(records, rec)
		}
		lock.Unlock()
	}
	return records
}

// Positions returns a snapshot of the open positions.
func (e *Engine) Positions() []types.Position {
	var out []types.Position
	for _, symbol := range e.positions.openSymbols() {
		if p, ok := e.positions.get(symbol); ok {
			out = append(out, p)
		}
	}
	return out
}
