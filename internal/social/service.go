package social

import (
	"context"
	"sync"
	"time"

	"crypto-quant-trader/internal/interfaces"
	"crypto-quant-trader/internal/logger"
	"crypto-quant-trader/internal/store"
	"crypto-quant-trader/internal/types"
)

// Service delivers the current SentimentScore to the trading cycles. The
// feed runs on its own cadence (default 15 minutes), slower than the
// market cycle, so the last computed score is cached and shared by all
// symbols until it expires.
type Service struct {
	cfg    *store.Config
	feed   interfaces.Feed
	scorer *Scorer

	mu        sync.RWMutex
	cached    types.SentimentScore
	fetchedAt time.Time
}

func NewService(cfg *store.Config, feed interfaces.Feed) *Service {
	return &Service{
		cfg:    cfg,
		feed:   feed,
		scorer: NewScorer(cfg),
	}
}

// Current returns the cached score, refreshing it when the sentiment
// cadence has elapsed. A failed refresh keeps the previous score: a
// broken feed degrades the input, it never fails the caller's cycle.
func (s *Service) Current(ctx context.Context) types.SentimentScore {
	s.mu.RLock()
	fresh := time.Since(s.fetchedAt) < s.cfg.SentimentRefresh() && !s.fetchedAt.IsZero()
	cached := s.cached
	s.mu.RUnlock()
	if fresh {
		return cached
	}
	return s.refresh(ctx)
}

func (s *Service) refresh(ctx context.Context) types.SentimentScore {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Another cycle may have refreshed while we waited for the lock.
	if time.Since(s.fetchedAt) < s.cfg.SentimentRefresh() && !s.fetchedAt.IsZero() {
		return s.cached
	}

	var batch []types.Post
	for _, account := range s.cfg.Social.Accounts {
		posts, err := s.feed.FetchRecent(ctx, account, s.cfg.Social.MaxPosts)
		if err != nil {
			logger.ErrorWithErr(ctx, "Social feed fetch failed", err, "account", account)
			continue
		}
		batch = append(batch, posts...)
	}

	score := s.scorer.Score(batch, time.Now())
	if score.SampleCount == 0 && s.cached.SampleCount > 0 && !s.fetchedAt.IsZero() {
		logger.Warn(ctx, "Social feed returned no posts, keeping previous score",
			"previous_value", s.cached.Value)
		return s.cached
	}

	s.cached = score
	s.fetchedAt = time.Now()
	logger.Info(ctx, "Sentiment refreshed",
		"value", score.Value,
		"samples", score.SampleCount,
		"flags", score.ImportantFlags,
	)
	return score
}

// StaticFeed serves a fixed batch of posts. It backs DRY_RUN setups and
// tests where no public timeline should be hit.
type StaticFeed struct {
	Posts []types.Post
}

func (f *StaticFeed) FetchRecent(ctx context.Context, account string, limit int) ([]types.Post, error) {
	var out []types.Post
	for _, p := range f.Posts {
		if p.Account == account || p.Account == "" {
			out = append(out, p)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
