package fusion

import (
	"testing"

	"github.com/stretchr/testify/require"

	"crypto-quant-trader/internal/indicator"
	"crypto-quant-trader/internal/store"
	"crypto-quant-trader/internal/types"
)

func testConfig() *store.Config {
	cfg := &store.Config{}
	cfg.Fusion.WeightIndicators = 1
	cfg.Fusion.WeightSentiment = 1
	cfg.Fusion.WeightAdvisor = 1
	cfg.Fusion.ConfidenceFloor = 0.5
	cfg.Indicators.RSIOverbought = 70
	cfg.Indicators.RSIOversold = 30
	return cfg
}

func snapWith(valid map[string]bool) types.IndicatorSnapshot {
	return types.IndicatorSnapshot{Valid: valid}
}

func TestFuseWeakAgreementHolds(t *testing.T) {
	// Indicators strongly bullish, sentiment neutral, advisor bearish:
	// (0.75 + 0 - 0.6) / 3 = 0.05, below the 0.5 floor.
	snap := types.IndicatorSnapshot{
		RSI:        25, // oversold: +1
		MACDLine:   1,
		MACDSignal: 0.5, // rising histogram: +1
		Close:      90,
		BBLower:    95, // close under the lower band: +1
		ShortTrend: types.TrendUp,
		LongTrend:  types.TrendFlat, // no trend vote
		Valid: map[string]bool{
			indicator.IndRSI:       true,
			indicator.IndMACD:      true,
			indicator.IndBollinger: true,
			indicator.IndTrend:     true,
		},
	}
	sentiment := types.SentimentScore{Value: 0}
	rec := types.AIRecommendation{Action: types.Sell, Confidence: 0.6}

	d := New(testConfig()).Fuse("BTC/USDT", snap, sentiment, rec)

	require.InDelta(t, 0.75, d.Scores[SourceIndicators], 1e-9)
	require.InDelta(t, 0.0, d.Scores[SourceSentiment], 1e-9)
	require.InDelta(t, -0.6, d.Scores[SourceAdvisor], 1e-9)
	require.Equal(t, types.Hold, d.Action)
	require.Less(t, d.Confidence, 0.5)
}

func TestFuseStrongAgreementBuys(t *testing.T) {
	snap := types.IndicatorSnapshot{
		RSI:        25,
		MACDLine:   1,
		MACDSignal: 0.5,
		Close:      90,
		BBLower:    95,
		ShortTrend: types.TrendUp,
		LongTrend:  types.TrendUp,
		Valid: map[string]bool{
			indicator.IndRSI:       true,
			indicator.IndMACD:      true,
			indicator.IndBollinger: true,
			indicator.IndTrend:     true,
		},
	}
	sentiment := types.SentimentScore{Value: 0.8}
	rec := types.AIRecommendation{Action: types.Buy, Confidence: 0.9}

	d := New(testConfig()).Fuse("BTC/USDT", snap, sentiment, rec)

	require.Equal(t, types.Buy, d.Action)
	require.InDelta(t, 1.0, d.Scores[SourceIndicators], 1e-9)
	require.GreaterOrEqual(t, d.Confidence, 0.5)
	require.LessOrEqual(t, d.Confidence, 1.0)
}

func TestFuseBearishSell(t *testing.T) {
	snap := types.IndicatorSnapshot{
		RSI:        80,
		MACDLine:   -1,
		MACDSignal: -0.5,
		Close:      110,
		BBUpper:    105,
		BBLower:    95,
		ShortTrend: types.TrendDown,
		LongTrend:  types.TrendDown,
		Valid: map[string]bool{
			indicator.IndRSI:       true,
			indicator.IndMACD:      true,
			indicator.IndBollinger: true,
			indicator.IndTrend:     true,
		},
	}
	sentiment := types.SentimentScore{Value: -0.7}
	rec := types.AIRecommendation{Action: types.Sell, Confidence: 0.8}

	d := New(testConfig()).Fuse("ETH/USDT", snap, sentiment, rec)
	require.Equal(t, types.Sell, d.Action)
}

func TestFuseAdvisorBreaksTie(t *testing.T) {
	cfg := testConfig()
	cfg.Fusion.ConfidenceFloor = 0.2

	// Indicators and sentiment cancel exactly; the advisor decides.
	snap := types.IndicatorSnapshot{
		RSI:   25,
		Valid: map[string]bool{indicator.IndRSI: true},
	}
	sentiment := types.SentimentScore{Value: -0.25}
	rec := types.AIRecommendation{Action: types.Sell, Confidence: 0.75}

	d := New(cfg).Fuse("BTC/USDT", snap, sentiment, rec)
	require.Equal(t, types.Sell, d.Action)

	// A silent advisor leaves the tie unresolved.
	d = New(cfg).Fuse("BTC/USDT", snap, sentiment, types.Neutral())
	require.Equal(t, types.Hold, d.Action)
}

func TestFusePartialSnapshotShrinksVote(t *testing.T) {
	full := map[string]bool{
		indicator.IndRSI:       true,
		indicator.IndMACD:      true,
		indicator.IndBollinger: true,
		indicator.IndTrend:     true,
	}
	partial := map[string]bool{indicator.IndRSI: true}

	snapFull := types.IndicatorSnapshot{
		RSI: 25, MACDLine: 1, MACDSignal: 0.5, Close: 90, BBLower: 95,
		ShortTrend: types.TrendUp, LongTrend: types.TrendUp, Valid: full,
	}
	snapPartial := types.IndicatorSnapshot{RSI: 25, Valid: partial}

	agg := New(testConfig())
	neutral := types.SentimentScore{}
	rec := types.Neutral()

	dFull := agg.Fuse("BTC/USDT", snapFull, neutral, rec)
	dPartial := agg.Fuse("BTC/USDT", snapPartial, neutral, rec)

	require.Greater(t, dFull.Scores[SourceIndicators], dPartial.Scores[SourceIndicators])
	require.InDelta(t, 0.25, dPartial.Scores[SourceIndicators], 1e-9)
}

func TestFuseConfidenceClamped(t *testing.T) {
	cfg := testConfig()
	cfg.Fusion.WeightAdvisor = 10

	snap := snapWith(map[string]bool{})
	sentiment := types.SentimentScore{Value: 1}
	rec := types.AIRecommendation{Action: types.Buy, Confidence: 1}

	d := New(cfg).Fuse("BTC/USDT", snap, sentiment, rec)
	require.LessOrEqual(t, d.Confidence, 1.0)
	require.Equal(t, types.Buy, d.Action)
}
