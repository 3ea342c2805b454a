package types

import "time"

// Candle is one OHLCV bar. Sequences are ordered oldest-first and
// immutable once returned by the exchange client.
type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

// Action is the directional outcome of a signal source or fused Decision.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// Trend classifies price direction over a lookback window.
type Trend string

const (
	TrendUp      Trend = "UP"
	TrendDown    Trend = "DOWN"
	TrendFlat    Trend = "FLAT"
	TrendUnknown Trend = "UNKNOWN"
)

// IndicatorSnapshot is the derived technical state for one symbol at one
// instant. It is recomputed every cycle and never persisted. A field is
// only meaningful when the matching entry in Valid is true; indicators
// whose window was too short are left invalid rather than failing the
// snapshot.
type IndicatorSnapshot struct {
	RSI         float64
	MACDLine    float64
	MACDSignal  float64
	BBUpper     float64
	BBMiddle    float64
	BBLower     float64
	Volatility  float64 // stddev of pct returns over the volatility period
	Close       float64
	VolumeTrend Trend
	Support     []float64
	Resistance  []float64
	ShortTrend  Trend // 6h window
	LongTrend   Trend // 24h window

	Valid map[string]bool // indicator name -> usable
}

// Has reports whether the named indicator was computable.
func (s IndicatorSnapshot) Has(name string) bool { return s.Valid[name] }

// Post is one social media post delivered by the feed collaborator.
type Post struct {
	ID        string
	Account   string
	Text      string
	CreatedAt time.Time
	Likes     int
	Reposts   int
}

// SentimentScore is the reduced view of a post batch.
type SentimentScore struct {
	Value          float64 // [-1, 1]
	ImportantFlags []string
	SampleCount    int
	ComputedAt     time.Time
}

// AIRecommendation is the advisory verdict from the external AI service.
// It is one voice among three, never authoritative.
type AIRecommendation struct {
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"` // [0, 1]
	Rationale  string    `json:"rationale"`
	ReceivedAt time.Time `json:"-"`
}

// Neutral returns the fallback recommendation used when the advisor is
// unavailable or returned garbage.
func Neutral() AIRecommendation {
	return AIRecommendation{Action: Hold, Confidence: 0, Rationale: "advisor unavailable", ReceivedAt: time.Now()}
}

// Decision is the fused trading recommendation for one symbol in one cycle.
type Decision struct {
	Symbol     string             `json:"symbol"`
	Action     Action             `json:"action"`
	Confidence float64            `json:"confidence"` // always clamped to [0, 1]
	Scores     map[string]float64 `json:"scores"`     // source -> directional score
	Reason     string             `json:"reason"`
}

// Side of an open position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Sign returns +1 for LONG and -1 for SHORT.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// PositionStatus is the lifecycle state of a Position instance.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "OPEN"
	StatusClosed PositionStatus = "CLOSED"
)

// ExitReason records why a position left the OPEN state.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTakeProfit   ExitReason = "TAKE_PROFIT"
	ExitTrailingStop ExitReason = "TRAILING_STOP"
	ExitManual       ExitReason = "MANUAL"
	ExitReversal     ExitReason = "REVERSAL"
)

// Position is a live holding for one symbol. At most one OPEN Position
// exists per symbol at any instant; the risk manager owns all mutation.
type Position struct {
	Symbol            string
	Side              Side
	EntryPrice        float64
	Size              float64 // actually-filled quantity, fixed-unit sizing
	EntryTime         time.Time
	StopLossPrice     float64
	TakeProfitPrice   float64
	TrailingWatermark float64 // best favorable price seen since entry
	Status            PositionStatus
}

// TradeRecord is the immutable closed-trade row appended to the ledger.
type TradeRecord struct {
	ID         string     `csv:"id"`
	Symbol     string     `csv:"symbol"`
	Side       Side       `csv:"side"`
	Size       float64    `csv:"size"`
	EntryPrice float64    `csv:"entry_price"`
	EntryTime  time.Time  `csv:"entry_time"`
	ExitPrice  float64    `csv:"exit_price"`
	ExitTime   time.Time  `csv:"exit_time"`
	PnL        float64    `csv:"pnl"`
	ExitReason ExitReason `csv:"exit_reason"`
}

// CycleResult summarizes one completed decision cycle for a symbol.
type CycleResult struct {
	Symbol   string        `json:"symbol"`
	Decision Decision      `json:"decision"`
	Price    float64       `json:"price"`
	Time     int64         `json:"time"`
	Orders   []OrderResult `json:"orders,omitempty"`
	Reason   string        `json:"reason"`
}

// OrderReq is a submission against the exchange capability interface.
// Token is the caller-generated idempotency token: resubmitting with the
// same token after a timeout must not produce a second fill.
type OrderReq struct {
	Symbol string
	Side   Action // BUY or SELL
	Size   float64
	Token  string
}

// OrderState is the exchange-reported lifecycle of an order.
type OrderState string

const (
	OrderFilled   OrderState = "FILLED"
	OrderPartial  OrderState = "PARTIALLY_FILLED"
	OrderPending  OrderState = "PENDING"
	OrderRejected OrderState = "REJECTED"
	OrderUnknown  OrderState = "UNKNOWN"
)

// OrderResult is the exchange response to a submission or close.
type OrderResult struct {
	OrderID   string
	State     OrderState
	FillPrice float64
	FillSize  float64
	Message   string
}

// OrderStatus is the answer to a reconciliation query.
type OrderStatus struct {
	OrderID   string
	State     OrderState
	FillPrice float64
	FillSize  float64
}
