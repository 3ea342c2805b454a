package ta

import "math"

// All functions operate on the tail of the series and return NaN when the
// window is shorter than the period. Callers translate NaN into an
// explicit data-insufficient condition instead of failing the cycle.

func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(n)
}

// EMASeries returns the full exponential moving average series seeded with
// an SMA over the first n values. Result has len(closes)-n+1 entries.
func EMASeries(closes []float64, n int) []float64 {
	if len(closes) < n || n <= 0 {
		return nil
	}
	k := 2.0 / (float64(n) + 1.0)
	out := make([]float64, 0, len(closes)-n+1)
	seed := 0.0
	for i := 0; i < n; i++ {
		seed += closes[i]
	}
	ema := seed / float64(n)
	out = append(out, ema)
	for i := n; i < len(closes); i++ {
		ema = closes[i]*k + ema*(1.0-k)
		out = append(out, ema)
	}
	return out
}

func EMA(closes []float64, n int) float64 {
	s := EMASeries(closes, n)
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}

func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100.0
	}
	rs := (gain / float64(period)) / (loss / float64(period))
	return 100.0 - (100.0 / (1.0 + rs))
}

// MACD returns the MACD line (fast EMA - slow EMA) and its signal line
// (EMA of the MACD line over signalN). Needs slowN+signalN-1 bars.
func MACD(closes []float64, fastN, slowN, signalN int) (line, signal float64) {
	if fastN <= 0 || slowN <= fastN || signalN <= 0 || len(closes) < slowN+signalN-1 {
		return math.NaN(), math.NaN()
	}
	fast := EMASeries(closes, fastN)
	slow := EMASeries(closes, slowN)
	// Align both series on the last len(slow) bars.
	off := len(fast) - len(slow)
	macd := make([]float64, len(slow))
	for i := range slow {
		macd[i] = fast[i+off] - slow[i]
	}
	sig := EMASeries(macd, signalN)
	if len(sig) == 0 {
		return math.NaN(), math.NaN()
	}
	return macd[len(macd)-1], sig[len(sig)-1]
}

func StdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	m := SMA(vals, n)
	s := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		d := vals[i] - m
		s += d * d
	}
	return math.Sqrt(s / float64(n))
}

func Bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	mid = SMA(closes, n)
	sd := StdDev(closes, n)
	up = mid + k*sd
	low = mid - k*sd
	return
}

// Volatility is the standard deviation of percentage returns over the
// last n bars.
func Volatility(closes []float64, n int) float64 {
	if len(closes) < n+1 || n <= 0 {
		return math.NaN()
	}
	rets := make([]float64, 0, n)
	for i := len(closes) - n; i < len(closes); i++ {
		if closes[i-1] == 0 {
			return math.NaN()
		}
		rets = append(rets, (closes[i]-closes[i-1])/closes[i-1]*100.0)
	}
	return StdDev(rets, n)
}
