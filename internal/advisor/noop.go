package advisor

import (
	"context"
	"time"

	"crypto-quant-trader/internal/types"
)

// Noop always recommends HOLD with zero confidence. Used when no AI
// provider is configured, so the advisor's fused weight contributes
// nothing.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (n *Noop) Advise(ctx context.Context, symbol string, snap types.IndicatorSnapshot, sentiment types.SentimentScore) (types.AIRecommendation, error) {
	return types.AIRecommendation{Action: types.Hold, Confidence: 0, Rationale: "no advisor configured", ReceivedAt: time.Now()}, nil
}
