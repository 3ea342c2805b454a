package indicator

import (
	"math"
	"sort"

	"crypto-quant-trader/internal/store"
	"crypto-quant-trader/internal/ta"
	"crypto-quant-trader/internal/types"
)

// Engine derives an IndicatorSnapshot from an ordered candle window.
// Every indicator is a pure function of the window; one that cannot be
// computed is marked invalid on the snapshot, it never fails the cycle.
type Engine struct {
	cfg *store.Config
}

func New(cfg *store.Config) *Engine {
	return &Engine{cfg: cfg}
}

const (
	IndRSI        = "rsi"
	IndMACD       = "macd"
	IndBollinger  = "bollinger"
	IndVolatility = "volatility"
	IndTrend      = "trend"
)

// Snapshot computes all configured indicators over candles. The returned
// snapshot may be partial; callers check Has() per indicator.
func (e *Engine) Snapshot(candles []types.Candle) types.IndicatorSnapshot {
	snap := types.IndicatorSnapshot{
		Valid:       map[string]bool{},
		VolumeTrend: types.TrendUnknown,
		ShortTrend:  types.TrendUnknown,
		LongTrend:   types.TrendUnknown,
	}
	if len(candles) == 0 {
		return snap
	}

	closes := make([]float64, len(candles))
	vols := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		vols[i] = c.Vol
	}
	snap.Close = closes[len(closes)-1]

	ind := e.cfg.Indicators

	if v := ta.RSI(closes, ind.RSIPeriod); !math.IsNaN(v) {
		snap.RSI = v
		snap.Valid[IndRSI] = true
	}
	if line, sig := ta.MACD(closes, ind.MACDFast, ind.MACDSlow, ind.MACDSignal); !math.IsNaN(line) && !math.IsNaN(sig) {
		snap.MACDLine = line
		snap.MACDSignal = sig
		snap.Valid[IndMACD] = true
	}
	if mid, up, low := ta.Bollinger(closes, ind.BBWindow, ind.BBStdDev); !math.IsNaN(mid) {
		snap.BBMiddle, snap.BBUpper, snap.BBLower = mid, up, low
		snap.Valid[IndBollinger] = true
	}
	if v := ta.Volatility(closes, ind.VolatilityPeriod); !math.IsNaN(v) {
		snap.Volatility = v
		snap.Valid[IndVolatility] = true
	}

	snap.ShortTrend = e.classifyTrend(closes, ind.ShortWindow)
	snap.LongTrend = e.classifyTrend(closes, ind.LongWindow)
	if snap.ShortTrend != types.TrendUnknown && snap.LongTrend != types.TrendUnknown {
		snap.Valid[IndTrend] = true
	}
	snap.VolumeTrend = volumeTrend(vols, ind.ShortWindow, ind.LongWindow)

	snap.Support, snap.Resistance = e.supportResistance(candles)
	return snap
}

// classifyTrend compares the first and last smoothed close of the window
// against the configured percentage threshold.
func (e *Engine) classifyTrend(closes []float64, window int) types.Trend {
	if window <= 1 || len(closes) < window {
		return types.TrendUnknown
	}
	w := closes[len(closes)-window:]
	first, last := w[0], w[len(w)-1]
	if first == 0 {
		return types.TrendUnknown
	}
	changePct := (last - first) / first * 100.0
	switch {
	case changePct > e.cfg.Indicators.TrendThresholdPct:
		return types.TrendUp
	case changePct < -e.cfg.Indicators.TrendThresholdPct:
		return types.TrendDown
	default:
		return types.TrendFlat
	}
}

func volumeTrend(vols []float64, short, long int) types.Trend {
	if len(vols) < long || short <= 0 || long <= short {
		return types.TrendUnknown
	}
	vs := ta.SMA(vols, short)
	vl := ta.SMA(vols, long)
	if math.IsNaN(vs) || math.IsNaN(vl) {
		return types.TrendUnknown
	}
	if vs > vl {
		return types.TrendUp
	}
	return types.TrendDown
}

// supportResistance finds local extrema over the short and long windows
// and clusters levels closer than 0.2% of the current price. Supports sit
// below price by at least the configured threshold, resistances above.
func (e *Engine) supportResistance(candles []types.Candle) (support, resistance []float64) {
	price := candles[len(candles)-1].Close
	threshold := e.cfg.Indicators.SRThresholdPct / 100.0

	var rawSupport, rawResistance []float64
	for _, window := range []int{e.cfg.Indicators.ShortWindow, e.cfg.Indicators.LongWindow} {
		if len(candles) < window || window < 3 {
			continue
		}
		w := candles[len(candles)-window:]
		for i := 1; i < len(w)-1; i++ {
			if w[i].Low < w[i-1].Low && w[i].Low < w[i+1].Low && w[i].Low < price*(1-threshold) {
				rawSupport = append(rawSupport, w[i].Low)
			}
			if w[i].High > w[i-1].High && w[i].High > w[i+1].High && w[i].High > price*(1+threshold) {
				rawResistance = append(rawResistance, w[i].High)
			}
		}
	}
	return clusterLevels(rawSupport, price*0.002), clusterLevels(rawResistance, price*0.002)
}

// clusterLevels merges price levels within width of each other into their
// mean, so near-duplicate extrema collapse into one level.
func clusterLevels(levels []float64, width float64) []float64 {
	if len(levels) == 0 {
		return nil
	}
	sort.Float64s(levels)
	var out []float64
	sum, count := levels[0], 1.0
	for i := 1; i < len(levels); i++ {
		if levels[i]-levels[i-1] <= width {
			sum += levels[i]
			count++
			continue
		}
		out = append(out, sum/count)
		sum, count = levels[i], 1
	}
	out = append(out, sum/count)
	return out
}
