package store

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"crypto-quant-trader/internal/types"
)

// Config is the process-wide configuration. It is loaded once at startup,
// validated, and passed by reference into every component; nothing
// mutates it afterwards.
type Config struct {
	Mode     string   `yaml:"mode"`     // DRY_RUN or LIVE
	Exchange string   `yaml:"exchange"` // BINANCE, OKX or PAPER
	Symbols  []string `yaml:"symbols"`

	Candles struct {
		Interval string `yaml:"interval"` // exchange kline interval, e.g. 1h
		Lookback int    `yaml:"lookback"` // bars fetched per cycle
	} `yaml:"candles"`

	Intervals struct {
		MarketRefreshSeconds    int `yaml:"market_refresh_seconds"`
		SentimentRefreshSeconds int `yaml:"sentiment_refresh_seconds"`
		ExitCheckSeconds        int `yaml:"exit_check_seconds"`
	} `yaml:"intervals"`

	Risk RiskConfig `yaml:"risk"`

	Fusion struct {
		WeightIndicators float64 `yaml:"weight_indicators"`
		WeightSentiment  float64 `yaml:"weight_sentiment"`
		WeightAdvisor    float64 `yaml:"weight_advisor"`
		ConfidenceFloor  float64 `yaml:"confidence_floor"`
	} `yaml:"fusion"`

	Indicators struct {
		RSIPeriod        int     `yaml:"rsi_period"`
		RSIOverbought    float64 `yaml:"rsi_overbought"`
		RSIOversold      float64 `yaml:"rsi_oversold"`
		MACDFast         int     `yaml:"macd_fast"`
		MACDSlow         int     `yaml:"macd_slow"`
		MACDSignal       int     `yaml:"macd_signal"`
		BBWindow         int     `yaml:"bb_window"`
		BBStdDev         float64 `yaml:"bb_stddev"`
		VolatilityPeriod int     `yaml:"volatility_period"`
		ShortWindow      int     `yaml:"short_window"` // bars, 6h at 1h interval
		LongWindow       int     `yaml:"long_window"`  // bars, 24h at 1h interval
		TrendThresholdPct float64 `yaml:"trend_threshold_pct"`
		SRThresholdPct    float64 `yaml:"sr_threshold_pct"` // support/resistance distance filter
	} `yaml:"indicators"`

	Social struct {
		Accounts          []string `yaml:"accounts"`
		Keywords          []string `yaml:"keywords"`
		KeywordMultiplier float64  `yaml:"keyword_multiplier"`
		HalfLifeMinutes   int      `yaml:"half_life_minutes"`
		MaxPosts          int      `yaml:"max_posts"`
		MaxAgeHours       int      `yaml:"max_age_hours"`
	} `yaml:"social"`

	Advisor struct {
		Provider       string  `yaml:"provider"` // DEEPSEEK, OPENAI or NONE
		Model          string  `yaml:"model"`
		BaseURL        string  `yaml:"base_url"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float32 `yaml:"temperature"`
	} `yaml:"advisor"`

	Retry RetryConfig `yaml:"retry"`

	Ledger struct {
		Dir    string  `yaml:"dir"`
		FeePct float64 `yaml:"fee_pct"`
	} `yaml:"ledger"`
}

// RiskConfig bounds every position the engine may hold.
type RiskConfig struct {
	StopLossPct        float64 `yaml:"stop_loss_pct"`
	TakeProfitPct      float64 `yaml:"take_profit_pct"`
	TrailingEnabled    bool    `yaml:"trailing_enabled"`
	TrailingDistPct    float64 `yaml:"trailing_distance_pct"`
	TradeSize          float64 `yaml:"trade_size"` // fixed units per entry
	CooldownSeconds    int     `yaml:"cooldown_seconds"`
	ReversalConfidence float64 `yaml:"reversal_confidence"` // opposing Decision floor for REVERSAL exit
}

// RetryConfig bounds backoff against external services.
type RetryConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`
	BaseDelayMs    int `yaml:"base_delay_ms"`
	MaxDelayMs     int `yaml:"max_delay_ms"`
	ReconcileTries int `yaml:"reconcile_tries"`
}

func (c *Config) MarketRefresh() time.Duration {
	return time.Duration(c.Intervals.MarketRefreshSeconds) * time.Second
}
func (c *Config) SentimentRefresh() time.Duration {
	return time.Duration(c.Intervals.SentimentRefreshSeconds) * time.Second
}
func (c *Config) ExitCheck() time.Duration {
	return time.Duration(c.Intervals.ExitCheckSeconds) * time.Second
}
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Risk.CooldownSeconds) * time.Second
}
func (c *Config) AdvisorTimeout() time.Duration {
	return time.Duration(c.Advisor.TimeoutSeconds) * time.Second
}

// Validate rejects configurations that must never reach the engine.
// Failures here are fatal at startup.
func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("%w: mode '%s' must be 'DRY_RUN' or 'LIVE'", types.ErrInvalidConfiguration, c.Mode)
	}
	switch c.Exchange {
	case "BINANCE", "OKX", "PAPER":
	default:
		return fmt.Errorf("%w: exchange '%s' must be 'BINANCE', 'OKX' or 'PAPER'", types.ErrInvalidConfiguration, c.Exchange)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("%w: symbols cannot be empty", types.ErrInvalidConfiguration)
	}
	if c.Risk.StopLossPct <= 0 || c.Risk.StopLossPct >= 100 {
		return fmt.Errorf("%w: risk.stop_loss_pct must be in (0,100), got %.2f", types.ErrInvalidConfiguration, c.Risk.StopLossPct)
	}
	if c.Risk.TakeProfitPct <= 0 || c.Risk.TakeProfitPct >= 100 {
		return fmt.Errorf("%w: risk.take_profit_pct must be in (0,100), got %.2f", types.ErrInvalidConfiguration, c.Risk.TakeProfitPct)
	}
	if c.Risk.TrailingEnabled && (c.Risk.TrailingDistPct <= 0 || c.Risk.TrailingDistPct >= 100) {
		return fmt.Errorf("%w: risk.trailing_distance_pct must be in (0,100), got %.2f", types.ErrInvalidConfiguration, c.Risk.TrailingDistPct)
	}
	if c.Risk.TradeSize <= 0 {
		return fmt.Errorf("%w: risk.trade_size must be positive, got %.4f", types.ErrInvalidConfiguration, c.Risk.TradeSize)
	}
	if c.Fusion.ConfidenceFloor < 0 || c.Fusion.ConfidenceFloor > 1 {
		return fmt.Errorf("%w: fusion.confidence_floor must be in [0,1], got %.2f", types.ErrInvalidConfiguration, c.Fusion.ConfidenceFloor)
	}
	if c.Fusion.WeightIndicators < 0 || c.Fusion.WeightSentiment < 0 || c.Fusion.WeightAdvisor < 0 {
		return fmt.Errorf("%w: fusion weights must be non-negative", types.ErrInvalidConfiguration)
	}
	if c.Fusion.WeightIndicators+c.Fusion.WeightSentiment+c.Fusion.WeightAdvisor == 0 {
		return fmt.Errorf("%w: at least one fusion weight must be positive", types.ErrInvalidConfiguration)
	}
	if c.Indicators.MACDFast >= c.Indicators.MACDSlow {
		return fmt.Errorf("%w: indicators.macd_fast must be below macd_slow", types.ErrInvalidConfiguration)
	}
	return nil
}

// LoadConfig reads, defaults and validates the yaml configuration.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidConfiguration, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.Exchange == "" {
		c.Exchange = "PAPER"
	}
	if c.Candles.Interval == "" {
		c.Candles.Interval = "1h"
	}
	if c.Candles.Lookback == 0 {
		c.Candles.Lookback = 200
	}
	if c.Intervals.MarketRefreshSeconds == 0 {
		c.Intervals.MarketRefreshSeconds = 300
	}
	if c.Intervals.SentimentRefreshSeconds == 0 {
		c.Intervals.SentimentRefreshSeconds = 900
	}
	if c.Intervals.ExitCheckSeconds == 0 {
		c.Intervals.ExitCheckSeconds = 60
	}
	if c.Risk.ReversalConfidence == 0 {
		c.Risk.ReversalConfidence = 0.7
	}
	if c.Fusion.WeightIndicators == 0 && c.Fusion.WeightSentiment == 0 && c.Fusion.WeightAdvisor == 0 {
		c.Fusion.WeightIndicators, c.Fusion.WeightSentiment, c.Fusion.WeightAdvisor = 1, 1, 1
	}
	if c.Fusion.ConfidenceFloor == 0 {
		c.Fusion.ConfidenceFloor = 0.5
	}
	ind := &c.Indicators
	if ind.RSIPeriod == 0 {
		ind.RSIPeriod = 14
	}
	if ind.RSIOverbought == 0 {
		ind.RSIOverbought = 70
	}
	if ind.RSIOversold == 0 {
		ind.RSIOversold = 30
	}
	if ind.MACDFast == 0 {
		ind.MACDFast = 12
	}
	if ind.MACDSlow == 0 {
		ind.MACDSlow = 26
	}
	if ind.MACDSignal == 0 {
		ind.MACDSignal = 9
	}
	if ind.BBWindow == 0 {
		ind.BBWindow = 20
	}
	if ind.BBStdDev == 0 {
		ind.BBStdDev = 2
	}
	if ind.VolatilityPeriod == 0 {
		ind.VolatilityPeriod = 14
	}
	if ind.ShortWindow == 0 {
		ind.ShortWindow = 6
	}
	if ind.LongWindow == 0 {
		ind.LongWindow = 24
	}
	if ind.TrendThresholdPct == 0 {
		ind.TrendThresholdPct = 0.5
	}
	if ind.SRThresholdPct == 0 {
		ind.SRThresholdPct = 1.0
	}
	if c.Social.KeywordMultiplier == 0 {
		c.Social.KeywordMultiplier = 1.5
	}
	if c.Social.HalfLifeMinutes == 0 {
		c.Social.HalfLifeMinutes = 360
	}
	if c.Social.MaxPosts == 0 {
		c.Social.MaxPosts = 20
	}
	if c.Social.MaxAgeHours == 0 {
		c.Social.MaxAgeHours = 24
	}
	if c.Advisor.Provider == "" {
		c.Advisor.Provider = "NONE"
	}
	if c.Advisor.Model == "" {
		c.Advisor.Model = "deepseek-chat"
	}
	if c.Advisor.BaseURL == "" {
		c.Advisor.BaseURL = "https://api.deepseek.com/v1"
	}
	if c.Advisor.TimeoutSeconds == 0 {
		c.Advisor.TimeoutSeconds = 30
	}
	if c.Advisor.MaxTokens == 0 {
		c.Advisor.MaxTokens = 512
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelayMs == 0 {
		c.Retry.BaseDelayMs = 500
	}
	if c.Retry.MaxDelayMs == 0 {
		c.Retry.MaxDelayMs = 8000
	}
	if c.Retry.ReconcileTries == 0 {
		c.Retry.ReconcileTries = 3
	}
	if c.Ledger.Dir == "" {
		c.Ledger.Dir = "data/trade_records"
	}
}
