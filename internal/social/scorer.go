package social

import (
	"math"
	"regexp"
	"strings"
	"time"

	"crypto-quant-trader/internal/store"
	"crypto-quant-trader/internal/types"
)

// Scorer reduces a batch of social posts to one bounded sentiment score.
// Aggregation is a recency-weighted average of per-post polarity; posts
// matching configured keywords are flagged and weighted up.
type Scorer struct {
	cfg           *store.Config
	positiveWords map[string]bool
	negativeWords map[string]bool
}

func NewScorer(cfg *store.Config) *Scorer {
	return &Scorer{
		cfg:           cfg,
		positiveWords: loadPositiveWords(),
		negativeWords: loadNegativeWords(),
	}
}

// Score aggregates posts into a SentimentScore. An empty batch yields a
// neutral score with SampleCount 0, never an error.
func (s *Scorer) Score(posts []types.Post, now time.Time) types.SentimentScore {
	out := types.SentimentScore{ComputedAt: now}
	if len(posts) == 0 {
		return out
	}

	halfLife := time.Duration(s.cfg.Social.HalfLifeMinutes) * time.Minute
	maxAge := time.Duration(s.cfg.Social.MaxAgeHours) * time.Hour
	flagged := map[string]bool{}

	var weightedSum, totalWeight float64
	for _, p := range posts {
		age := now.Sub(p.CreatedAt)
		if age < 0 {
			age = 0
		}
		if age > maxAge {
			continue
		}

		polarity := s.Polarity(p.Text)
		weight := math.Exp2(-age.Minutes() / halfLife.Minutes())

		if kws := s.MatchKeywords(p.Text); len(kws) > 0 {
			weight *= s.cfg.Social.KeywordMultiplier
			for _, k := range kws {
				flagged[k] = true
			}
		}

		weightedSum += polarity * weight
		totalWeight += weight
		out.SampleCount++
	}

	if totalWeight > 0 {
		out.Value = clamp(weightedSum/totalWeight, -1, 1)
	}
	for k := range flagged {
		out.ImportantFlags = append(out.ImportantFlags, k)
	}
	return out
}

// Polarity scores one post's text in [-1, 1] from the lexicon: the net
// positive-minus-negative word count over matched words.
func (s *Scorer) Polarity(text string) float64 {
	words := tokenize(cleanText(text))
	pos, neg := 0, 0
	for _, w := range words {
		if s.positiveWords[w] {
			pos++
		}
		if s.negativeWords[w] {
			neg++
		}
	}
	matched := pos + neg
	if matched == 0 {
		return 0
	}
	return clamp(float64(pos-neg)/float64(matched), -1, 1)
}

// MatchKeywords returns the configured keywords found in the text.
func (s *Scorer) MatchKeywords(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, kw := range s.cfg.Social.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			found = append(found, kw)
		}
	}
	return found
}

var (
	urlRe     = regexp.MustCompile(`https?://\S+|www\.\S+`)
	mentionRe = regexp.MustCompile(`@\w+`)
	symbolRe  = regexp.MustCompile(`[^\w\s]|\d`)
)

func cleanText(text string) string {
	text = urlRe.ReplaceAllString(text, "")
	text = mentionRe.ReplaceAllString(text, "")
	text = symbolRe.ReplaceAllString(text, "")
	return strings.ToLower(text)
}

func tokenize(text string) []string {
	return strings.Fields(text)
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

func loadPositiveWords() map[string]bool {
	return wordSet(
		"bullish", "surge", "rally", "gain", "gains", "growth", "record",
		"breakout", "adoption", "partnership", "upgrade", "launch",
		"milestone", "strong", "positive", "soar", "soars", "win",
		"approval", "listing", "integration", "expansion", "success",
		"profit", "profits", "moon", "pump", "ath", "accumulate",
	)
}

func loadNegativeWords() map[string]bool {
	return wordSet(
		"bearish", "crash", "dump", "drop", "drops", "plunge", "loss",
		"losses", "hack", "hacked", "exploit", "scam", "fraud", "ban",
		"banned", "lawsuit", "sec", "fine", "delisting", "delist",
		"weak", "negative", "fear", "fud", "liquidation", "liquidations",
		"selloff", "collapse", "bankruptcy", "insolvent",
	)
}

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
