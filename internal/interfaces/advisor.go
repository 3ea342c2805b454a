package interfaces

import (
	"context"

	"crypto-quant-trader/internal/types"
)

// Advisor wraps the external AI advisory call. One request per cycle per
// symbol, bounded by a timeout; the response is advisory, never
// authoritative. Failures surface as ErrAdvisorUnavailable and callers
// fall back to a neutral recommendation.
type Advisor interface {
	Advise(ctx context.Context, symbol string, snap types.IndicatorSnapshot, sentiment types.SentimentScore) (types.AIRecommendation, error)
}
