// Package indicators implements the pure indicator primitives the
// analysis generator composes every step: moving averages, Wilder
// oscillators, Bollinger Bands, and the Choppiness Index. Functions here
// are either pure batch computations over a caller-supplied window, or
// small incremental trackers that own their own Wilder accumulators.
package indicators

import "math"

// MAType enumerates the moving-average family an AnalysisOptions slot can
// request.
type MAType string

const (
	TypeSMA  MAType = "SMA"
	TypeEMA  MAType = "EMA"
	TypeWMA  MAType = "WMA"
	TypeHMA  MAType = "HMA"
	TypeEHMA MAType = "EHMA"
)

// SMA is the arithmetic mean of the last len(closes) values. Callers pass
// exactly the window they want averaged.
func SMA(closes []float64) float64 {
	if len(closes) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range closes {
		sum += c
	}
	return sum / float64(len(closes))
}

// WMA is the textbook linearly-weighted moving average: the most recent
// sample (last element of closes) carries the largest weight.
func WMA(closes []float64) float64 {
	n := len(closes)
	if n == 0 {
		return 0
	}
	var weightedSum, weightTotal float64
	for i, c := range closes {
		w := float64(i + 1)
		weightedSum += c * w
		weightTotal += w
	}
	return weightedSum / weightTotal
}

// EMAStep advances an EMA recursion by one close. Seeding (the first
// value equaling the close) is the caller's responsibility.
func EMAStep(prevEMA, price float64, period int) float64 {
	k := 2.0 / (float64(period) + 1.0)
	return price*k + prevEMA*(1-k)
}

// EMABatch computes the EMA of a window from scratch: seed at the first
// sample and recurse through the remainder unconditionally. EMA has no
// sub-period fallback; it is defined for any non-empty window, and a
// replay from closes[0] reproduces the same value an incremental tracker
// seeded on the first candle would carry.
func EMABatch(closes []float64, period int) float64 {
	if len(closes) == 0 {
		return 0
	}
	ema := closes[0]
	for i := 1; i < len(closes); i++ {
		ema = EMAStep(ema, closes[i], period)
	}
	return ema
}

// MA computes a moving average of the requested type and period over the
// tail of closes. SMA/WMA/EMA are defined for any non-empty closes, using
// whatever window is available before `period` samples have accumulated.
// Only HMA/EHMA fall back to the latest close below their period: Hull's
// construction needs at least `period` closes and has no sane
// partial-window definition.
func MA(closes []float64, period int, t MAType) float64 {
	if len(closes) == 0 {
		return 0
	}
	window := closes
	if len(closes) > period {
		window = closes[len(closes)-period:]
	}
	switch t {
	case TypeSMA:
		return SMA(window)
	case TypeWMA:
		return WMA(window)
	case TypeEMA:
		return EMABatch(closes, period)
	case TypeHMA:
		return HMA(closes, period)
	case TypeEHMA:
		return EHMA(closes, period)
	default:
		return SMA(window)
	}
}

// HMA is Hull's moving average: 2*WMA(period/2) - WMA(period), smoothed
// by a WMA over sqrt(period) points of that raw series.
func HMA(closes []float64, period int) float64 {
	if len(closes) < period {
		if len(closes) == 0 {
			return 0
		}
		return closes[len(closes)-1]
	}
	return hullFamily(closes, period, WMA)
}

// EHMA replaces HMA's inner WMAs with EMAs.
func EHMA(closes []float64, period int) float64 {
	if len(closes) < period {
		if len(closes) == 0 {
			return 0
		}
		return closes[len(closes)-1]
	}
	inner := func(w []float64) float64 { return EMABatch(w, len(w)) }
	return hullFamily(closes, period, inner)
}

// hullFamily implements the shared Hull recursion for both HMA and EHMA:
// for each of the last sqrt(period) points, compute
// 2*innerMA(period/2) - innerMA(period) ending at that point, then apply
// innerMA again over that short raw series with a sqrt(period) window.
func hullFamily(closes []float64, period int, innerMA func([]float64) float64) float64 {
	halfPeriod := period / 2
	if halfPeriod < 1 {
		halfPeriod = 1
	}
	sqrtPeriod := int(math.Sqrt(float64(period)))
	if sqrtPeriod < 1 {
		sqrtPeriod = 1
	}

	rawCount := sqrtPeriod
	if rawCount > len(closes)-period+1 {
		rawCount = len(closes) - period + 1
	}
	if rawCount < 1 {
		rawCount = 1
	}

	raw := make([]float64, 0, rawCount)
	for i := 0; i < rawCount; i++ {
		end := len(closes) - rawCount + i + 1
		full := closes[:end]
		fullWindow := full
		if len(full) > period {
			fullWindow = full[len(full)-period:]
		}
		halfWindow := full
		if len(full) > halfPeriod {
			halfWindow = full[len(full)-halfPeriod:]
		}
		raw = append(raw, 2*innerMA(halfWindow)-innerMA(fullWindow))
	}
	return WMA(raw)
}
