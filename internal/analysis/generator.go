package analysis

import (
	"signalengine/internal/candle"
	"signalengine/internal/codebook"
	"signalengine/internal/engineerrors"
	"signalengine/internal/indicators"
)

// maxWindowHeadroom bounds how far past the longest configured period the
// rolling closes window is allowed to grow before being trimmed.
const maxWindowHeadroom = 32

// Generator is the per-symbol incremental analysis state machine. One
// Generator owns one symbol's history; it is not safe for concurrent use
// by more than one goroutine.
type Generator struct {
	symbol  string
	options Options
	state   State
}

// New constructs a Generator. A zero or negative period anywhere in
// options is an OptionsError fatal to construction.
func New(symbol string, options Options) (*Generator, error) {
	for _, p := range options.periods() {
		if p <= 0 {
			return nil, engineerrors.New(engineerrors.KindOptions, symbol, "indicator period must be positive", nil)
		}
	}
	return &Generator{
		symbol:  symbol,
		options: options,
		state: State{
			atrTracker:      indicators.NewATRTracker(options.ATRPeriod),
			rsiTracker:      indicators.NewRSITracker(options.RSIPeriod),
			adxTracker:      indicators.NewADXTracker(options.ADXPeriod),
			lastEMACutIndex: -1,
		},
	}, nil
}

// Latest returns the most recently produced result, if any.
func (g *Generator) Latest() (*Result, bool) {
	n := len(g.state.series)
	if n == 0 {
		return nil, false
	}
	r := g.state.series[n-1]
	return &r, true
}

// Series returns the full append-only result history as a freshly
// allocated copy; changing it does not affect the generator.
func (g *Generator) Series() []Result {
	out := make([]Result, len(g.state.series))
	copy(out, g.state.series)
	return out
}

// AppendTick folds one live price tick into the forming candle, closing
// and advancing the generator whenever the tick crosses a 60-second
// boundary. It returns the newly sealed Result, or nil if the tick only
// updated the still-forming candle.
func (g *Generator) AppendTick(price float64, timeSeconds uint64) (*Result, error) {
	minute := (timeSeconds / 60) * 60
	st := &g.state

	if !st.formingOpen {
		st.formingCandle = candle.Candle{Time: minute, Open: price, High: price, Low: price, Close: price}
		st.formingMinute = minute
		st.formingOpen = true
		return nil, nil
	}

	if minute < st.formingMinute {
		// Out-of-order tick behind the forming candle; ticks carry no
		// ordering guarantee of their own, so it is dropped.
		return nil, nil
	}

	if minute == st.formingMinute {
		if price > st.formingCandle.High {
			st.formingCandle.High = price
		}
		if price < st.formingCandle.Low {
			st.formingCandle.Low = price
		}
		st.formingCandle.Close = price
		return nil, nil
	}

	sealed := st.formingCandle
	result, err := g.AppendCandle(sealed)
	if err != nil {
		return nil, err
	}

	st.formingCandle = candle.Candle{Time: minute, Open: price, High: price, Low: price, Close: price}
	st.formingMinute = minute
	st.formingOpen = true

	return &result, nil
}

// AppendCandle advances the generator by one closed candle and returns its
// AnalysisResult. A candle whose Time does not strictly follow the
// previous one is an OrderingError, fatal to this generator.
func (g *Generator) AppendCandle(c candle.Candle) (Result, error) {
	st := &g.state

	if st.haveLastCandle && c.Time <= st.lastCandle.Time {
		return Result{}, engineerrors.New(engineerrors.KindOrdering, g.symbol, "candle time did not strictly increase", nil)
	}

	index := uint64(len(st.series))

	r := Result{Index: index, CandleTime: c.Time, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close}
	r.Color = c.ColorOf()

	// Body/wick geometry: the three pieces always sum to high-low exactly.
	r.Body = absf(c.Close - c.Open)
	r.UWick = c.High - c.BodyTop()
	r.LWick = c.BodyBottom() - c.Low
	fullRange := c.High - c.Low
	if fullRange > 0 {
		r.BodyPercent = r.Body / fullRange * 100
		r.UWickPercent = r.UWick / fullRange * 100
		r.LWickPercent = r.LWick / fullRange * 100
	}

	st.closes = append(st.closes, c.Close)
	if max := g.options.maxPeriod() + maxWindowHeadroom; len(st.closes) > max {
		st.closes = st.closes[len(st.closes)-max:]
	}

	r.ShortMA = indicators.MA(st.closes, g.options.Short.Period, g.options.Short.Type)
	r.MediumMA = indicators.MA(st.closes, g.options.Medium.Period, g.options.Medium.Type)
	r.LongMA = indicators.MA(st.closes, g.options.Long.Period, g.options.Long.Type)

	var prev *Result
	if n := len(st.series); n > 0 {
		prev = &st.series[n-1]
	}
	var prev2 *Result
	if n := len(st.series); n > 1 {
		prev2 = &st.series[n-2]
	}

	if prev != nil {
		r.ShortDir = indicators.ClassifyDirection(prev.ShortMA, r.ShortMA, g.options.FlatThreshold)
		r.MediumDir = indicators.ClassifyDirection(prev.MediumMA, r.MediumMA, g.options.FlatThreshold)
		r.LongDir = indicators.ClassifyDirection(prev.LongMA, r.LongMA, g.options.FlatThreshold)
	} else {
		r.ShortDir, r.MediumDir, r.LongDir = indicators.Flat, indicators.Flat, indicators.Flat
	}

	if prev2 != nil {
		r.ShortTurnType = indicators.ClassifyTurn(prev2.ShortMA, prev.ShortMA, r.ShortMA)
	} else {
		r.ShortTurnType = indicators.TurnNone
	}

	if r.ShortMA > r.MediumMA {
		r.EMAAbove = ShortAbove
	} else {
		r.EMAAbove = MediumAboveShort
	}
	if r.MediumMA > r.LongMA {
		r.EMALongAbove = MediumAboveLong
	} else {
		r.EMALongAbove = LongAbove
	}

	r.MACD12 = absf(r.ShortMA - r.MediumMA)
	r.MACD23 = absf(r.MediumMA - r.LongMA)
	if prev != nil {
		r.PrevMACD12, r.PrevMACD23 = prev.MACD12, prev.MACD23
	} else {
		r.PrevMACD12, r.PrevMACD23 = r.MACD12, r.MACD23
	}
	r.EMAConvergenceType = indicators.ClassifyConvergence(r.MACD12, r.PrevMACD12)
	r.EMALongConvergenceType = longConvergenceOf(indicators.ClassifyConvergence(r.MACD23, r.PrevMACD23))

	mediumAboveLongNow := r.MediumMA > r.LongMA
	if !st.havePrevMediumAboveLong {
		r.EMACutLongType = CutNone
		st.havePrevMediumAboveLong = true
	} else if mediumAboveLongNow != st.prevMediumAboveLong {
		st.lastEMACutIndex = int(index)
		if mediumAboveLongNow {
			r.EMACutLongType = CutUpTrend
		} else {
			r.EMACutLongType = CutDownTrend
		}
	} else {
		r.EMACutLongType = CutNone
	}
	st.prevMediumAboveLong = mediumAboveLongNow
	if st.lastEMACutIndex >= 0 {
		r.CandlesSinceEMACut = int(index) - st.lastEMACutIndex
	}

	switch r.MediumDir {
	case indicators.Up:
		st.upConMedium++
		st.downConMedium = 0
	case indicators.Down:
		st.downConMedium++
		st.upConMedium = 0
	}
	switch r.LongDir {
	case indicators.Up:
		st.upConLong++
		st.downConLong = 0
	case indicators.Down:
		st.downConLong++
		st.upConLong = 0
	}
	r.UpConMedium, r.DownConMedium = st.upConMedium, st.downConMedium
	r.UpConLong, r.DownConLong = st.upConLong, st.downConLong

	var prevCandle *candle.Candle
	if st.haveLastCandle {
		prevCandle = st.lastCandle
	}
	tr := c.TrueRange(prevCandle)
	r.ATR = st.atrTracker.Update(tr)
	r.IsAbnormalCandle = r.ATR > 0 && tr > r.ATR*g.options.ATRMultiplier
	r.IsAbnormalATR = r.ATR > 0 && r.Body > r.ATR*g.options.ATRMultiplier

	if st.haveLastCandle {
		change := c.Close - st.lastCandle.Close
		if rsi, ok := st.rsiTracker.Update(change); ok {
			v := rsi
			r.RSI = &v
		}
	}

	if adx, ok := st.adxTracker.Update(c, derefCandle(prevCandle), st.haveLastCandle); ok {
		v := adx
		r.ADX = &v
	}

	if upper, middle, lower, ok := indicators.BollingerBands(st.closes, g.options.BBPeriod); ok {
		u, m, l := upper, middle, lower
		r.BBUpper, r.BBMiddle, r.BBLower = &u, &m, &l
	}
	r.BBPosition = indicators.ClassifyBBPosition(c.Close, derefOr(r.BBUpper, 0), derefOr(r.BBLower, 0), r.BBUpper != nil)

	st.highs = appendBounded(st.highs, c.High, g.options.CIPeriod)
	st.lows = appendBounded(st.lows, c.Low, g.options.CIPeriod)
	st.atrHistory = appendBounded(st.atrHistory, r.ATR, g.options.CIPeriod)
	if ci, ok := indicators.ChoppinessIndex(st.highs, st.lows, st.atrHistory, g.options.CIPeriod); ok {
		v := ci
		r.ChoppinessIndex = &v
	}

	r.EMACutPosition = classifyEMACutPosition(r.ShortMA, c)

	desc := codebook.Descriptor{
		LongAbove:   string(r.EMALongAbove)[:1],
		MediumDir:   string(r.MediumDir)[:1],
		LongDir:     string(r.LongDir)[:1],
		Color:       string(r.Color)[:1],
		Convergence: string(r.EMALongConvergenceType),
	}
	r.StatusDesc = desc.String()
	if code, ok := codebook.Lookup(desc); ok {
		r.StatusCode = code
	}

	if prev != nil {
		st.series[len(st.series)-1].NextColor = r.Color
	}
	st.series = append(st.series, r)

	st.lastCandle = &candle.Candle{Time: c.Time, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close}
	st.haveLastCandle = true

	return r, nil
}

// classifyEMACutPosition places the short MA against the candle's body and
// wicks into one of seven zones: "1" above the upper wick, "2" in the
// upper wick (above the body top, at or below the high), "B1"/"B2"/"B3"
// inside the body (upper third, middle third, lower third), "3" in the
// lower wick (below the body bottom, at or above the low), "4" below the
// lower wick.
func classifyEMACutPosition(shortMA float64, c candle.Candle) string {
	top, bottom := c.BodyTop(), c.BodyBottom()
	switch {
	case shortMA > c.High:
		return "1"
	case shortMA > top:
		return "2"
	case shortMA >= bottom:
		span := top - bottom
		if span <= 0 {
			return "B2"
		}
		pos := (shortMA - bottom) / span
		switch {
		case pos >= 0.66:
			return "B1"
		case pos >= 0.33:
			return "B2"
		default:
			return "B3"
		}
	case shortMA >= c.Low:
		return "3"
	default:
		return "4"
	}
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func appendBounded(s []float64, v float64, max int) []float64 {
	s = append(s, v)
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}

func derefCandle(c *candle.Candle) candle.Candle {
	if c == nil {
		return candle.Candle{}
	}
	return *c
}

func derefOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}
