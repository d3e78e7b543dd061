package indicators

import (
	"math"
	"testing"

	"signalengine/internal/candle"
)

func TestSMAAndWMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	if got := SMA(closes); got != 3 {
		t.Fatalf("SMA = %v, want 3", got)
	}
	// WMA weights the most recent sample heaviest.
	wma := WMA(closes)
	if wma <= SMA(closes) {
		t.Fatalf("WMA(%v) should exceed SMA for a rising series, got wma=%v sma=%v", closes, wma, SMA(closes))
	}
}

func TestMASubPeriodBehaviorByType(t *testing.T) {
	closes := []float64{10, 20}

	// SMA/WMA average whatever window is available rather than falling
	// back to the latest close.
	if got := MA(closes, 5, TypeSMA); got != SMA(closes) {
		t.Fatalf("MA(SMA) below period = %v, want SMA(window) = %v", got, SMA(closes))
	}
	if got := MA(closes, 5, TypeWMA); got != WMA(closes) {
		t.Fatalf("MA(WMA) below period = %v, want WMA(window) = %v", got, WMA(closes))
	}

	// EMA recurses from the first close unconditionally, regardless of
	// whether `period` samples have accumulated yet.
	want := EMAStep(closes[0], closes[1], 5)
	if got := MA(closes, 5, TypeEMA); got != want {
		t.Fatalf("MA(EMA) below period = %v, want unconditional recursion = %v", got, want)
	}

	// HMA/EHMA alone fall back to the latest close below their period:
	// Hull's construction has no sane partial-window definition.
	for _, ty := range []MAType{TypeHMA, TypeEHMA} {
		if got := MA(closes, 5, ty); got != 20 {
			t.Fatalf("MA(%s) sub-period fallback = %v, want last close 20", ty, got)
		}
	}
}

func TestRSIBoundsAndAvgLossZero(t *testing.T) {
	tracker := NewRSITracker(3)
	var rsi float64
	var ok bool
	changes := []float64{1, 1, 1, 1, 1} // all gains, avgLoss stays 0
	for _, c := range changes {
		rsi, ok = tracker.Update(c)
	}
	if !ok {
		t.Fatalf("expected RSI ready after warmup")
	}
	if rsi != 100 {
		t.Fatalf("expected RSI=100 when avgLoss==0, got %v", rsi)
	}
}

func TestRSINotReadyBeforeWarmup(t *testing.T) {
	tracker := NewRSITracker(14)
	_, ok := tracker.Update(1)
	if ok {
		t.Fatalf("RSI should not be ready on first update with period 14")
	}
}

func TestATRFirstCandleDegeneratesToHighLow(t *testing.T) {
	tracker := NewATRTracker(14)
	got := tracker.Update(5.0)
	if got != 5.0 {
		t.Fatalf("ATR after first TR = %v, want 5.0", got)
	}
}

func TestADXZeroWhenDIsSumToZero(t *testing.T) {
	tracker := NewADXTracker(1)
	c1 := candle.Candle{Time: 60, Open: 10, High: 10, Low: 10, Close: 10}
	c2 := candle.Candle{Time: 120, Open: 10, High: 10, Low: 10, Close: 10}
	if _, ok := tracker.Update(c1, candle.Candle{}, false); ok {
		t.Fatalf("ADX should not be ready without a previous candle")
	}
	adx, ok := tracker.Update(c2, c1, true)
	if !ok {
		t.Fatalf("expected ADX ready after period steps")
	}
	if math.IsNaN(adx) || adx < 0 || adx > 100 {
		t.Fatalf("ADX out of bounds or NaN: %v", adx)
	}
	if adx != 0 {
		t.Fatalf("expected ADX=0 for flat identical candles (DI+ + DI- == 0), got %v", adx)
	}
}

func TestBollingerBandsOrdering(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	upper, middle, lower, ok := BollingerBands(closes, 5)
	if !ok {
		t.Fatalf("expected BB ready with enough samples")
	}
	if !(lower <= middle && middle <= upper) {
		t.Fatalf("BB ordering violated: lower=%v middle=%v upper=%v", lower, middle, upper)
	}
}

func TestChoppinessIndexFlatRangeIsZero(t *testing.T) {
	highs := []float64{10, 10, 10}
	lows := []float64{10, 10, 10}
	atrs := []float64{1, 1, 1}
	ci, ok := ChoppinessIndex(highs, lows, atrs, 3)
	if !ok {
		t.Fatalf("expected CI ready")
	}
	if ci != 0 {
		t.Fatalf("expected CI=0 when max(high)==min(low), got %v", ci)
	}
}

func TestClassifyDirectionFlatThreshold(t *testing.T) {
	if got := ClassifyDirection(1.0, 1.0001, 0.2); got != Flat {
		t.Fatalf("expected Flat within threshold, got %v", got)
	}
	if got := ClassifyDirection(1.0, 2.0, 0.2); got != Up {
		t.Fatalf("expected Up, got %v", got)
	}
	if got := ClassifyDirection(2.0, 1.0, 0.2); got != Down {
		t.Fatalf("expected Down, got %v", got)
	}
}

func TestClassifyTurn(t *testing.T) {
	// Down then Up: prevDiff negative, currDiff positive.
	if got := ClassifyTurn(10, 9, 10); got != TurnUp {
		t.Fatalf("expected TurnUp, got %v", got)
	}
	if got := ClassifyTurn(9, 10, 9); got != TurnDown {
		t.Fatalf("expected TurnDown, got %v", got)
	}
	if got := ClassifyTurn(10, 10, 10); got != TurnNone {
		t.Fatalf("expected no turn on flat series, got %v", got)
	}
}
