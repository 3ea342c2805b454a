package advisor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crypto-quant-trader/internal/api"
	"crypto-quant-trader/internal/store"
	"crypto-quant-trader/internal/types"
)

func TestParseRecommendation(t *testing.T) {
	rec, err := parseRecommendation(`{"action":"BUY","confidence":0.8,"rationale":"momentum"}`)
	require.NoError(t, err)
	require.Equal(t, types.Buy, rec.Action)
	require.InDelta(t, 0.8, rec.Confidence, 1e-9)
	require.Equal(t, "momentum", rec.Rationale)

	// Models wrap the verdict in prose; the JSON object is extracted.
	rec, err = parseRecommendation("Here is my analysis:\n```json\n{\"action\":\"sell\",\"confidence\":0.6,\"rationale\":\"overbought\"}\n```\nGood luck!")
	require.NoError(t, err)
	require.Equal(t, types.Sell, rec.Action)
}

func TestParseRecommendationRejectsGarbage(t *testing.T) {
	cases := []string{
		"no json here at all",
		`{"action":"YOLO","confidence":0.5}`,
		`{"action":"BUY","confidence":1.5}`,
		`{"action":"BUY","confidence":-0.1}`,
		`{"action":"BUY","confidence":"high"}`,
	}
	for _, c := range cases {
		_, err := parseRecommendation(c)
		require.Error(t, err, "input: %s", c)
	}
}

func advisorConfig(baseURL string) *store.Config {
	cfg := &store.Config{}
	cfg.Advisor.Provider = "DEEPSEEK"
	cfg.Advisor.Model = "deepseek-chat"
	cfg.Advisor.BaseURL = baseURL
	cfg.Advisor.TimeoutSeconds = 1
	cfg.Advisor.MaxTokens = 128
	return cfg
}

func testClient(cfg *store.Config) *Client {
	return &Client{
		cfg: cfg,
		http: api.NewClient(
			api.WithBaseURL(cfg.Advisor.BaseURL),
			api.WithTimeout(cfg.AdvisorTimeout()),
		),
	}
}

func TestAdviseParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"action\":\"BUY\",\"confidence\":0.7,\"rationale\":\"uptrend\"}"}}]}`))
	}))
	defer srv.Close()

	c := testClient(advisorConfig(srv.URL))
	rec, err := c.Advise(context.Background(), "BTC/USDT", types.IndicatorSnapshot{Close: 100}, types.SentimentScore{})
	require.NoError(t, err)
	require.Equal(t, types.Buy, rec.Action)
	require.InDelta(t, 0.7, rec.Confidence, 1e-9)
}

func TestAdviseTimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	c := testClient(advisorConfig(srv.URL))
	_, err := c.Advise(context.Background(), "BTC/USDT", types.IndicatorSnapshot{}, types.SentimentScore{})
	require.ErrorIs(t, err, types.ErrAdvisorUnavailable)
}

func TestAdviseMalformedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"I cannot decide."}}]}`))
	}))
	defer srv.Close()

	c := testClient(advisorConfig(srv.URL))
	_, err := c.Advise(context.Background(), "BTC/USDT", types.IndicatorSnapshot{}, types.SentimentScore{})
	require.ErrorIs(t, err, types.ErrAdvisorUnavailable)

	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv2.Close()

	c = testClient(advisorConfig(srv2.URL))
	_, err = c.Advise(context.Background(), "BTC/USDT", types.IndicatorSnapshot{}, types.SentimentScore{})
	require.ErrorIs(t, err, types.ErrAdvisorUnavailable)
}

func TestNoopAlwaysHolds(t *testing.T) {
	rec, err := NewNoop().Advise(context.Background(), "BTC/USDT", types.IndicatorSnapshot{}, types.SentimentScore{})
	require.NoError(t, err)
	require.Equal(t, types.Hold, rec.Action)
	require.Zero(t, rec.Confidence)
}
