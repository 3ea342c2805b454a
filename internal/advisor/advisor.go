package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"crypto-quant-trader/internal/api"
	"crypto-quant-trader/internal/interfaces"
	"crypto-quant-trader/internal/store"
	"crypto-quant-trader/internal/trace"
	"crypto-quant-trader/internal/types"
)

// Client calls an OpenAI-compatible chat completions endpoint for one
// advisory recommendation per cycle per symbol. The call is bounded by
// the configured timeout; timeouts and malformed responses surface as
// ErrAdvisorUnavailable so the aggregator can fall back to neutral.
type Client struct {
	cfg    *store.Config
	http   *api.Client
	apiKey string
}

// New selects the advisor for the configured provider. Without a usable
// provider or key the noop advisor is returned: the system keeps trading
// on indicators and sentiment alone.
func New(cfg *store.Config) interfaces.Advisor {
	var keyEnv string
	switch strings.ToUpper(cfg.Advisor.Provider) {
	case "DEEPSEEK":
		keyEnv = "DEEPSEEK_API_KEY"
	case "OPENAI":
		keyEnv = "OPENAI_API_KEY"
	default:
		return NewNoop()
	}
	key := os.Getenv(keyEnv)
	if key == "" {
		return NewNoop()
	}
	return &Client{
		cfg: cfg,
		http: api.NewClient(
			api.WithBaseURL(cfg.Advisor.BaseURL),
			api.WithTimeout(cfg.AdvisorTimeout()),
			api.WithHeader("Authorization", "Bearer "+key),
		),
		apiKey: key,
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// rawRecommendation is the schema the model is asked to emit.
type rawRecommendation struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

func (c *Client) Advise(ctx context.Context, symbol string, snap types.IndicatorSnapshot, sentiment types.SentimentScore) (types.AIRecommendation, error) {
	ctx, span := trace.StartSpan(ctx, "advisor-call")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.AdvisorTimeout())
	defer cancel()

	body := map[string]any{
		"model": c.cfg.Advisor.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildPrompt(symbol, snap, sentiment)},
		},
		"temperature": c.cfg.Advisor.Temperature,
		"max_tokens":  c.cfg.Advisor.MaxTokens,
	}

	var resp chatResponse
	if err := c.http.PostJSON(ctx, "/chat/completions", body, &resp); err != nil {
		return types.AIRecommendation{}, fmt.Errorf("%w: %v", types.ErrAdvisorUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return types.AIRecommendation{}, fmt.Errorf("%w: empty response", types.ErrAdvisorUnavailable)
	}

	rec, err := parseRecommendation(resp.Choices[0].Message.Content)
	if err != nil {
		return types.AIRecommendation{}, fmt.Errorf("%w: %v", types.ErrAdvisorUnavailable, err)
	}
	return rec, nil
}

// parseRecommendation extracts and validates the JSON verdict from the
// model output. Out-of-schema content is an error, not a crash; the
// advisor is untrusted input.
func parseRecommendation(content string) (types.AIRecommendation, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return types.AIRecommendation{}, errors.New("no JSON object in response")
	}

	var raw rawRecommendation
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return types.AIRecommendation{}, fmt.Errorf("malformed response: %v", err)
	}

	action := types.Action(strings.ToUpper(strings.TrimSpace(raw.Action)))
	switch action {
	case types.Buy, types.Sell, types.Hold:
	default:
		return types.AIRecommendation{}, fmt.Errorf("invalid action %q", raw.Action)
	}
	if raw.Confidence < 0 || raw.Confidence > 1 {
		return types.AIRecommendation{}, fmt.Errorf("confidence %.2f out of range", raw.Confidence)
	}

	return types.AIRecommendation{
		Action:     action,
		Confidence: raw.Confidence,
		Rationale:  strings.TrimSpace(raw.Rationale),
		ReceivedAt: time.Now(),
	}, nil
}

const systemPrompt = `You are a cryptocurrency market analyst. Given the technical and social context, respond ONLY with compact JSON: {"action":"BUY|SELL|HOLD","confidence":0.0-1.0,"rationale":"..."}`

func buildPrompt(symbol string, snap types.IndicatorSnapshot, sentiment types.SentimentScore) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\nPrice: %.4f\n", symbol, snap.Close)
	if snap.Has("rsi") {
		fmt.Fprintf(&b, "RSI: %.2f\n", snap.RSI)
	}
	if snap.Has("macd") {
		fmt.Fprintf(&b, "MACD: %.4f signal %.4f\n", snap.MACDLine, snap.MACDSignal)
	}
	if snap.Has("bollinger") {
		fmt.Fprintf(&b, "Bollinger: upper %.4f mid %.4f lower %.4f\n", snap.BBUpper, snap.BBMiddle, snap.BBLower)
	}
	if snap.Has("volatility") {
		fmt.Fprintf(&b, "Volatility: %.2f%%\n", snap.Volatility)
	}
	fmt.Fprintf(&b, "Short trend (6h): %s, long trend (24h): %s, volume: %s\n", snap.ShortTrend, snap.LongTrend, snap.VolumeTrend)
	if len(snap.Support) > 0 {
		fmt.Fprintf(&b, "Support: %v\n", trimLevels(snap.Support))
	}
	if len(snap.Resistance) > 0 {
		fmt.Fprintf(&b, "Resistance: %v\n", trimLevels(snap.Resistance))
	}
	fmt.Fprintf(&b, "Social sentiment: %.2f over %d posts", sentiment.Value, sentiment.SampleCount)
	if len(sentiment.ImportantFlags) > 0 {
		fmt.Fprintf(&b, " (flags: %s)", strings.Join(sentiment.ImportantFlags, ", "))
	}
	return b.String()
}

func trimLevels(levels []float64) []float64 {
	if len(levels) > 3 {
		return levels[:3]
	}
	return levels
}
