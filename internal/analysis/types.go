// Package analysis implements the per-symbol incremental analysis
// generator: the streaming state machine that turns a sequence of closed
// candles into AnalysisResults carrying a deterministic status code.
package analysis

import (
	"signalengine/internal/candle"
	"signalengine/internal/indicators"
)

// MASpec names one of the three MA slots an AnalysisOptions configures.
type MASpec struct {
	Type   indicators.MAType
	Period int
}

// Options is immutable for a generator's entire life.
type Options struct {
	Short MASpec
	Medium MASpec
	Long  MASpec

	ATRPeriod int
	BBPeriod  int
	CIPeriod  int
	ADXPeriod int
	RSIPeriod int

	ATRMultiplier float64
	FlatThreshold float64
	MACDNarrow    float64
}

// periods lists every configured period, used for window sizing and
// validation.
func (o Options) periods() []int {
	return []int{o.Short.Period, o.Medium.Period, o.Long.Period, o.ATRPeriod, o.BBPeriod, o.CIPeriod, o.ADXPeriod, o.RSIPeriod}
}

// maxPeriod is the longest configured period, used to size rolling
// windows with headroom.
func (o Options) maxPeriod() int {
	max := 1
	for _, p := range o.periods() {
		if p > max {
			max = p
		}
	}
	return max
}

// EMAAbove classifies short vs medium MA.
type EMAAbove string

const (
	ShortAbove  EMAAbove = "ShortAbove"
	MediumAboveShort EMAAbove = "MediumAbove"
)

// EMALongAbove classifies medium vs long MA.
type EMALongAbove string

const (
	MediumAboveLong EMALongAbove = "MediumAbove"
	LongAbove       EMALongAbove = "LongAbove"
)

// LongConvergence is the pre-abbreviated D/C/N form used for both
// status descriptor field E and Result.EMALongConvergenceType.
type LongConvergence string

const (
	LongDivergence  LongConvergence = "D"
	LongConverging  LongConvergence = "C"
	LongNeutral     LongConvergence = "N"
)

// EMACutLongType flags a flip of (medium > long) between steps.
type EMACutLongType string

const (
	CutUpTrend   EMACutLongType = "UpTrend"
	CutDownTrend EMACutLongType = "DownTrend"
	CutNone      EMACutLongType = "none"
)

// Result is one AnalysisResult: everything known about a single closed
// candle once the generator has advanced past it.
type Result struct {
	Index      uint64
	CandleTime uint64

	Open, High, Low, Close float64

	Body, UWick, LWick                   float64
	BodyPercent, UWickPercent, LWickPercent float64
	Color                                 candle.Color
	// NextColor is patched in by the following call to AppendCandle; it
	// is the zero value ("") until that happens, i.e. for the most
	// recently produced (unsealed) result.
	NextColor candle.Color

	ShortMA, MediumMA, LongMA          float64
	ShortDir, MediumDir, LongDir       indicators.Direction
	ShortTurnType                      indicators.TurnType

	EMAAbove     EMAAbove
	EMALongAbove EMALongAbove

	MACD12, MACD23         float64
	PrevMACD12, PrevMACD23 float64

	EMAConvergenceType indicators.ConvergenceType
	// EMALongConvergenceType is already the abbreviated D/C/N form; it
	// feeds status descriptor field E directly.
	EMALongConvergenceType LongConvergence

	EMACutLongType     EMACutLongType
	CandlesSinceEMACut int

	UpConMedium, DownConMedium int
	UpConLong, DownConLong     int

	ATR float64
	RSI *float64
	ADX *float64

	BBUpper, BBMiddle, BBLower *float64
	BBPosition                 indicators.BBPosition

	ChoppinessIndex *float64

	IsAbnormalCandle bool
	IsAbnormalATR    bool

	EMACutPosition string // "1", "2", "B1", "B2", "B3", "3", "4"

	StatusDesc string
	StatusCode string
}

// State is the per-symbol mutable generator state. It is owned
// exclusively by one AnalysisGenerator and never shared across symbols.
type State struct {
	closes []float64// rolling window, capped to maxPeriod+headroom
	highs  []float64 // rolling window sized to CIPeriod, for CI
	lows   []float64
	atrHistory []float64 // rolling window sized to CIPeriod, for CI's sum_atr

	atrTracker *indicators.ATRTracker
	rsiTracker *indicators.RSITracker
	adxTracker *indicators.ADXTracker

	lastCandle    *candle.Candle
	haveLastCandle bool

	havePrevMediumAboveLong bool
	prevMediumAboveLong     bool
	lastEMACutIndex         int // -1 until the first cut

	upConMedium, downConMedium int
	upConLong, downConLong     int

	formingCandle candle.Candle
	formingOpen   bool
	formingMinute uint64

	// series is the append-only output history. The last element is
	// mutable (its NextColor gets patched) until the next AppendCandle
	// seals it by appending a new one.
	series []Result
}

// longConvergenceOf maps the generic ConvergenceType onto the
// pre-abbreviated D/C/N form used by status descriptor field E.
func longConvergenceOf(c indicators.ConvergenceType) LongConvergence {
	switch c {
	case indicators.Divergence:
		return LongDivergence
	case indicators.Convergence:
		return LongConverging
	default:
		return LongNeutral
	}
}
