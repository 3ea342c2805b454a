package fusion

import (
	"fmt"
	"math"

	"crypto-quant-trader/internal/indicator"
	"crypto-quant-trader/internal/store"
	"crypto-quant-trader/internal/types"
)

// Aggregator fuses the three signal sources into one Decision with a
// weighted vote. It is pure and synchronous: no I/O, no state beyond the
// configuration it was built with.
type Aggregator struct {
	cfg *store.Config
}

func New(cfg *store.Config) *Aggregator {
	return &Aggregator{cfg: cfg}
}

const (
	SourceIndicators = "indicators"
	SourceSentiment  = "sentiment"
	SourceAdvisor    = "advisor"
)

// Fuse combines the per-source directional scores in [-1,1] into a
// Decision. The fused score is the weight-normalized sum, clamped to
// [-1,1]; its magnitude is the confidence. Below the configured floor
// the Decision is forced to HOLD.
func (a *Aggregator) Fuse(symbol string, snap types.IndicatorSnapshot, sentiment types.SentimentScore, rec types.AIRecommendation) types.Decision {
	indScore := a.indicatorScore(snap)
	sentScore := clamp(sentiment.Value, -1, 1)
	aiScore := advisorScore(rec)

	w := a.cfg.Fusion
	totalWeight := w.WeightIndicators + w.WeightSentiment + w.WeightAdvisor
	fused := (indScore*w.WeightIndicators + sentScore*w.WeightSentiment + aiScore*w.WeightAdvisor) / totalWeight
	fused = clamp(fused, -1, 1)

	// Exact cancellation between two opposing sources: the advisor's
	// weighted voice is the deciding factor; a silent advisor means HOLD.
	if fused == 0 && (indScore != 0 || sentScore != 0) {
		fused = clamp(aiScore*w.WeightAdvisor/totalWeight, -1, 1)
	}

	confidence := math.Abs(fused)
	action := types.Hold
	reason := "fused score below confidence floor"
	if confidence >= a.cfg.Fusion.ConfidenceFloor {
		if fused > 0 {
			action = types.Buy
		} else {
			action = types.Sell
		}
		reason = fmt.Sprintf("fused score %.3f", fused)
	}

	return types.Decision{
		Symbol:     symbol,
		Action:     action,
		Confidence: confidence,
		Scores: map[string]float64{
			SourceIndicators: indScore,
			SourceSentiment:  sentScore,
			SourceAdvisor:    aiScore,
		},
		Reason: reason,
	}
}

// indicatorScore maps the snapshot's rule state to a direction in [-1,1].
// Each available indicator casts a vote; the votes are averaged over the
// full rule count, so a partial snapshot shrinks the magnitude instead of
// failing the cycle.
func (a *Aggregator) indicatorScore(snap types.IndicatorSnapshot) float64 {
	ind := a.cfg.Indicators
	const ruleCount = 4.0
	vote := 0.0

	if snap.Has(indicator.IndRSI) {
		switch {
		case snap.RSI <= ind.RSIOversold:
			vote++
		case snap.RSI >= ind.RSIOverbought:
			vote--
		}
	}
	if snap.Has(indicator.IndMACD) {
		hist := snap.MACDLine - snap.MACDSignal
		switch {
		case snap.MACDLine > snap.MACDSignal && hist > 0:
			vote++
		case snap.MACDLine < snap.MACDSignal && hist < 0:
			vote--
		}
	}
	if snap.Has(indicator.IndBollinger) {
		switch {
		case snap.Close < snap.BBLower:
			vote++
		case snap.Close > snap.BBUpper:
			vote--
		}
	}
	if snap.Has(indicator.IndTrend) {
		switch {
		case snap.ShortTrend == types.TrendUp && snap.LongTrend == types.TrendUp:
			vote++
		case snap.ShortTrend == types.TrendDown && snap.LongTrend == types.TrendDown:
			vote--
		}
	}

	return clamp(vote/ruleCount, -1, 1)
}

// advisorScore maps BUY/SELL/HOLD to a direction scaled by the advisor's
// own confidence. A neutral fallback therefore contributes exactly zero.
func advisorScore(rec types.AIRecommendation) float64 {
	conf := clamp(rec.Confidence, 0, 1)
	switch rec.Action {
	case types.Buy:
		return conf
	case types.Sell:
		return -conf
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
