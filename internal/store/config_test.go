package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"crypto-quant-trader/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
mode: DRY_RUN
exchange: PAPER
symbols:
  - BTC/USDT
risk:
  stop_loss_pct: 3.0
  take_profit_pct: 2.0
  trade_size: 0.01
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	require.Equal(t, 300, cfg.Intervals.MarketRefreshSeconds)
	require.Equal(t, 900, cfg.Intervals.SentimentRefreshSeconds)
	require.Equal(t, 60, cfg.Intervals.ExitCheckSeconds)
	require.Equal(t, 14, cfg.Indicators.RSIPeriod)
	require.Equal(t, 12, cfg.Indicators.MACDFast)
	require.Equal(t, 26, cfg.Indicators.MACDSlow)
	require.InDelta(t, 1.0, cfg.Fusion.WeightIndicators, 1e-9)
	require.InDelta(t, 0.5, cfg.Fusion.ConfidenceFloor, 1e-9)
	require.InDelta(t, 0.7, cfg.Risk.ReversalConfidence, 1e-9)
	require.Equal(t, "NONE", cfg.Advisor.Provider)
	require.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.Equal(t, "data/trade_records", cfg.Ledger.Dir)
}

func TestLoadConfigDurationHelpers(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	require.Equal(t, "5m0s", cfg.MarketRefresh().String())
	require.Equal(t, "15m0s", cfg.SentimentRefresh().String())
	require.Equal(t, "1m0s", cfg.ExitCheck().String())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		yaml  string
	}{
		{"bad mode", "mode: SANDBOX\nexchange: PAPER\nsymbols: [BTC/USDT]\nrisk:\n  stop_loss_pct: 3\n  take_profit_pct: 2\n  trade_size: 0.01\n"},
		{"bad exchange", "mode: DRY_RUN\nexchange: MTGOX\nsymbols: [BTC/USDT]\nrisk:\n  stop_loss_pct: 3\n  take_profit_pct: 2\n  trade_size: 0.01\n"},
		{"no symbols", "mode: DRY_RUN\nexchange: PAPER\nsymbols: []\nrisk:\n  stop_loss_pct: 3\n  take_profit_pct: 2\n  trade_size: 0.01\n"},
		{"bad stop", "mode: DRY_RUN\nexchange: PAPER\nsymbols: [BTC/USDT]\nrisk:\n  stop_loss_pct: 120\n  take_profit_pct: 2\n  trade_size: 0.01\n"},
		{"bad size", "mode: DRY_RUN\nexchange: PAPER\nsymbols: [BTC/USDT]\nrisk:\n  stop_loss_pct: 3\n  take_profit_pct: 2\n  trade_size: -1\n"},
		{"macd order", "mode: DRY_RUN\nexchange: PAPER\nsymbols: [BTC/USDT]\nrisk:\n  stop_loss_pct: 3\n  take_profit_pct: 2\n  trade_size: 0.01\nindicators:\n  macd_fast: 26\n  macd_slow: 12\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.yaml))
			require.ErrorIs(t, err, types.ErrInvalidConfiguration)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadConfigBadYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "mode: [unclosed"))
	require.ErrorIs(t, err, types.ErrInvalidConfiguration)
}
