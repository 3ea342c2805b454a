package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"crypto-quant-trader/internal/interfaces"
	"crypto-quant-trader/internal/logger"
	"crypto-quant-trader/internal/store"
	"crypto-quant-trader/internal/tradelog"
	"crypto-quant-trader/internal/types"
)

// orderExecutor drives every order through the exchange. Each intent
// gets one ULID idempotency token for its lifetime: a resubmission or a
// reconciliation query after a timeout always refers to the original
// order, so no intent can fill twice.
type orderExecutor struct {
	exch  interfaces.Exchange
	retry store.RetryConfig

	entMu   sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newOrderExecutor(exch interfaces.Exchange, retry store.RetryConfig) *orderExecutor {
	return &orderExecutor{
		exch:    exch,
		retry:   retry,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (oe *orderExecutor) newToken() string {
	oe.entMu.Lock()
	defer oe.entMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), oe.entropy).String()
}

// submit places a market order and resolves its terminal state. A
// transport failure is ambiguous: the order may or may not have reached
// the venue, so the executor reconciles by token before giving up.
func (oe *orderExecutor) submit(ctx context.Context, symbol string, side types.Action, size float64, reason string) (types.OrderResult, error) {
	token := oe.newToken()
	req := types.OrderReq{Symbol: symbol, Side: side, Size: size, Token: token}

	result, err := oe.exch.SubmitOrder(ctx, req)
	if err != nil {
		logger.Warn(ctx, "Order submission failed, reconciling",
			"symbol", symbol, "side", side, "token", token, "error", err)
		return oe.reconcile(ctx, req, err)
	}

	switch result.State {
	case types.OrderFilled, types.OrderPartial:
		oe.logFill(ctx, symbol, side, result, token, reason)
		return result, nil
	case types.OrderRejected:
		return result, &types.OrderExecutionError{Symbol: symbol, Token: token,
			Err: errRejected(result.Message)}
	default:
		// Accepted but not yet terminal; poll it down.
		return oe.reconcile(ctx, req, nil)
	}
}

// reconcile queries the order's fate by token with bounded backoff.
// Exhausting the attempts without a terminal answer surfaces as an
// unresolved OrderExecutionError; the engine must not retry with a
// fresh token, that is how double fills happen.
func (oe *orderExecutor) reconcile(ctx context.Context, req types.OrderReq, submitErr error) (types.OrderResult, error) {
	wait := time.Duration(oe.retry.BaseDelayMs) * time.Millisecond
	maxWait := time.Duration(oe.retry.MaxDelayMs) * time.Millisecond

	tries := oe.retry.ReconcileTries
	if tries <= 0 {
		tries = 3
	}

	for attempt := 1; attempt <= tries; attempt++ {
		select {
		case <-ctx.Done():
			return types.OrderResult{}, &types.OrderExecutionError{
				Symbol: req.Symbol, Token: req.Token, Unresolved: true, Err: ctx.Err()}
		case <-time.After(wait):
		}
		wait *= 2
		if wait > maxWait {
			wait = maxWait
		}

		status, err := oe.exch.OrderStatus(ctx, req.Token)
		if err != nil {
			logger.Warn(ctx, "Order reconciliation query failed",
				"symbol", req.Symbol, "token", req.Token, "attempt", attempt, "error", err)
			continue
		}

		switch status.State {
		case types.OrderFilled, types.OrderPartial:
			result := types.OrderResult{
				OrderID:   status.OrderID,
				State:     status.State,
				FillPrice: status.FillPrice,
				FillSize:  status.FillSize,
				Message:   "resolved by reconciliation",
			}
			oe.logFill(ctx, req.Symbol, req.Side, result, req.Token, "reconciled")
			return result, nil
		case types.OrderRejected:
			return types.OrderResult{State: types.OrderRejected}, &types.OrderExecutionError{
				Symbol: req.Symbol, Token: req.Token, Err: errRejected("rejected by venue")}
		case types.OrderUnknown:
			// For a venue that never saw the order, one clean resubmission
			// with the SAME token is safe: the token dedupes venue-side.
			if submitErr != nil && attempt == tries {
				break
			}
			if submitErr != nil {
				if result, err := oe.exch.SubmitOrder(ctx, req); err == nil &&
					(result.State == types.OrderFilled || result.State == types.OrderPartial) {
					oe.logFill(ctx, req.Symbol, req.Side, result, req.Token, "resubmitted")
					return result, nil
				}
			}
		}
	}

	return types.OrderResult{State: types.OrderUnknown}, &types.OrderExecutionError{
		Symbol: req.Symbol, Token: req.Token, Unresolved: true, Err: submitErr}
}

// closePosition market-closes the holding, reusing the same reconcile
// path as entries.
func (oe *orderExecutor) closePosition(ctx context.Context, p types.Position, reason string) (types.OrderResult, error) {
	token := oe.newToken()
	result, err := oe.exch.ClosePosition(ctx, p.Symbol, p.Side, p.Size, token)
	if err != nil {
		closeSide := types.Sell
		if p.Side == types.Short {
			closeSide = types.Buy
		}
		logger.Warn(ctx, "Close submission failed, reconciling",
			"symbol", p.Symbol, "token", token, "error", err)
		return oe.reconcile(ctx, types.OrderReq{Symbol: p.Symbol, Side: closeSide, Size: p.Size, Token: token}, err)
	}
	if result.State == types.OrderRejected {
		return result, &types.OrderExecutionError{Symbol: p.Symbol, Token: token,
			Err: errRejected(result.Message)}
	}
	oe.logFill(ctx, p.Symbol, types.Action("CLOSE_"+string(p.Side)), result, token, reason)
	return result, nil
}

func (oe *orderExecutor) logFill(ctx context.Context, symbol string, side types.Action, r types.OrderResult, token, reason string) {
	logger.Trade(ctx, symbol, string(side), r.FillSize, r.FillPrice, r.OrderID, "reason", reason)
	_ = tradelog.Append(tradelog.OrderEntry{
		Symbol:  symbol,
		Side:    string(side),
		OrderID: r.OrderID,
		Token:   token,
		Size:    r.FillSize,
		Price:   r.FillPrice,
		Reason:  reason,
	})
}

type rejectionError string

func (e rejectionError) Error() string { return "order rejected: " + string(e) }

func errRejected(msg string) error {
	if msg == "" {
		msg = "no reason given"
	}
	return rejectionError(msg)
}
