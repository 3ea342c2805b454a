package interfaces

import (
	"context"

	"crypto-quant-trader/internal/types"
)

// Feed delivers a finite batch of recent posts for a tracked account.
// No ordering guarantee beyond recency within a batch.
type Feed interface {
	FetchRecent(ctx context.Context, account string, limit int) ([]types.Post, error)
}
