package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crypto-quant-trader/internal/types"
)

func TestRunnerCloseAllFlattensOnce(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.Intervals.MarketRefreshSeconds = 1
	cfg.Intervals.ExitCheckSeconds = 1
	exch := newFakeExchange(100)
	adv := &fakeAdvisor{}
	adv.set(buy(0.9), nil)
	eng, rec := newTestEngine(t, cfg, exch, adv)

	runner := NewRunner(cfg, eng)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)

	// The decision loop cycles immediately on start.
	require.Eventually(t, func() bool {
		return len(eng.Positions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	records := runner.CloseAll()
	require.Len(t, records, 1)
	require.Equal(t, types.ExitManual, records[0].ExitReason)
	require.Empty(t, eng.Positions())

	// The workers are gone: the still-bullish advisor gets no further
	// cycle, so nothing reopens across the next refresh tick.
	time.Sleep(1500 * time.Millisecond)
	require.Empty(t, eng.Positions())

	// A second close-all finds nothing left to flatten.
	require.Empty(t, runner.CloseAll())

	trades, err := rec.All()
	require.NoError(t, err)
	require.Len(t, trades, 1)
}

func TestRunnerStopLeavesPositionsOpen(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.Intervals.MarketRefreshSeconds = 1
	cfg.Intervals.ExitCheckSeconds = 1
	exch := newFakeExchange(100)
	adv := &fakeAdvisor{}
	adv.set(buy(0.9), nil)
	eng, rec := newTestEngine(t, cfg, exch, adv)

	runner := NewRunner(cfg, eng)
	runner.Start(context.Background())

	require.Eventually(t, func() bool {
		return len(eng.Positions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	runner.Stop()
	require.Len(t, eng.Positions(), 1)

	trades, err := rec.All()
	require.NoError(t, err)
	require.Empty(t, trades)
}
