package engine

import (
	"context"
	"sync"
	"time"

	"crypto-quant-trader/internal/interfaces"
	"crypto-quant-trader/internal/logger"
	"crypto-quant-trader/internal/store"
	"crypto-quant-trader/internal/trace"
	"crypto-quant-trader/internal/types"
)

// Runner owns the worker goroutines: one decision loop per symbol plus
// the faster protective exit sweep. A close-all request preempts the
// workers by cancelling their context before the sweep runs, so no new
// entry can race the flatten.
type Runner struct {
	cfg *store.Config
	eng interfaces.Engine

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	closeAll chan chan []types.TradeRecord
}

func NewRunner(cfg *store.Config, eng interfaces.Engine) *Runner {
	return &Runner{
		cfg:      cfg,
		eng:      eng,
		closeAll: make(chan chan []types.TradeRecord),
	}
}

// Start launches the workers. It returns immediately; Stop or CloseAll
// tears them down.
func (r *Runner) Start(parent context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.done = make(chan struct{})

	var wg sync.WaitGroup
	for _, symbol := range r.cfg.Symbols {
		wg.Add(2)
		go func(sym string) {
			defer wg.Done()
			r.decisionLoop(ctx, sym)
		}(symbol)
		go func(sym string) {
			defer wg.Done()
			r.exitLoop(ctx, sym)
		}(symbol)
	}

	go func() {
		defer close(r.done)
		for {
			select {
			case reply := <-r.closeAll:
				cancel()
				wg.Wait()
				reply <- r.eng.CloseAll(context.Background())
				return
			case <-ctx.Done():
				wg.Wait()
				return
			}
		}
	}()

	logger.Info(ctx, "Workers started",
		"symbols", r.cfg.Symbols,
		"market_refresh", r.cfg.MarketRefresh().String(),
		"exit_check", r.cfg.ExitCheck().String(),
	)
}

// decisionLoop runs the full cycle immediately and then on every market
// refresh tick.
func (r *Runner) decisionLoop(ctx context.Context, symbol string) {
	r.step(ctx, symbol)

	tick := time.NewTicker(r.cfg.MarketRefresh())
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			r.step(ctx, symbol)
		}
	}
}

func (r *Runner) step(ctx context.Context, symbol string) {
	ctx, span := trace.StartSpan(ctx, "runner.cycle")
	defer span.End()
	if _, err := r.eng.Step(ctx, symbol); err != nil {
		logger.ErrorWithErr(ctx, "Cycle error", err, "symbol", symbol)
	}
}

// exitLoop sweeps protective exits between full cycles.
func (r *Runner) exitLoop(ctx context.Context, symbol string) {
	tick := time.NewTicker(r.cfg.ExitCheck())
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := r.eng.CheckExits(ctx, symbol); err != nil {
				logger.Warn(ctx, "Exit sweep error", "symbol", symbol, "error", err)
			}
		}
	}
}

// CloseAll stops the workers, waits for in-flight cycles to finish and
// flattens every position. Safe to call once per Start.
func (r *Runner) CloseAll() []types.TradeRecord {
	r.mu.Lock()
	if r.cancel == nil {
		r.mu.Unlock()
		return r.eng.CloseAll(context.Background())
	}
	r.mu.Unlock()

	reply := make(chan []types.TradeRecord, 1)
	select {
	case r.closeAll <- reply:
		return <-reply
	case <-r.done:
		// Workers already stopped; flatten directly.
		return r.eng.CloseAll(context.Background())
	}
}

// Stop cancels the workers without closing positions.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}
