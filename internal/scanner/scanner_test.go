package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"signalengine/internal/upstream"
)

type fakeFetcher struct {
	candles map[string][]upstream.Candle
}

func (f fakeFetcher) FetchHistory(ctx context.Context, symbol string, count int) ([]upstream.Candle, error) {
	return f.candles[symbol], nil
}

func risingCandles(n int, start float64) []upstream.Candle {
	out := make([]upstream.Candle, n)
	for i := 0; i < n; i++ {
		c := start + float64(i)
		out[i] = upstream.Candle{Epoch: uint64(60 * (i + 1)), Open: c, Close: c + 1, High: c + 1.5, Low: c - 0.5}
	}
	return out
}

func TestRunOnceRanksByScoreDescending(t *testing.T) {
	fetcher := fakeFetcher{candles: map[string][]upstream.Candle{
		"frxEURUSD": risingCandles(20, 100),
		"frxUSDJPY": risingCandles(20, 100),
	}}
	s := New(Config{
		CronSpec:        "@every 1h",
		CandleCount:     20,
		IndicatorPeriod: 5,
		Assets: []AssetConfig{
			{Symbol: "frxEURUSD"},
			{Symbol: "frxUSDJPY"},
		},
	}, fetcher, nil, zerolog.Nop())

	s.runOnce(context.Background())

	status := s.Status()
	if status.TotalScans != 1 {
		t.Fatalf("TotalScans = %d, want 1", status.TotalScans)
	}
	if len(status.LastResults) != 2 {
		t.Fatalf("expected 2 ranked results, got %d", len(status.LastResults))
	}
	if status.LastResults[0].Rank != 1 || status.LastResults[1].Rank != 2 {
		t.Fatalf("ranks not assigned in score order: %+v", status.LastResults)
	}
	if status.LastResults[0].Score < status.LastResults[1].Score {
		t.Fatalf("results not sorted by descending score: %+v", status.LastResults)
	}
}

func TestScanOneBullishAndRecentCandles(t *testing.T) {
	candles := risingCandles(20, 100)
	fetcher := fakeFetcher{candles: map[string][]upstream.Candle{"frxEURUSD": candles}}
	s := New(Config{CandleCount: 20, IndicatorPeriod: 5, Assets: []AssetConfig{{Symbol: "frxEURUSD"}}}, fetcher, nil, zerolog.Nop())

	result, err := s.scanOne(context.Background(), AssetConfig{Symbol: "frxEURUSD"})
	if err != nil {
		t.Fatalf("scanOne: %v", err)
	}
	last := candles[len(candles)-1]
	if result.IsBullish != (last.Close >= last.Open) {
		t.Fatalf("IsBullish = %v, want close(%v) >= open(%v)", result.IsBullish, last.Close, last.Open)
	}
	wantColors := 10 // len(candles) > recentCandleWindow
	if got := len(splitColors(result.RecentCandles)); got != wantColors {
		t.Fatalf("RecentCandles has %d entries, want %d", got, wantColors)
	}
}

func splitColors(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func TestScanOneSkipsSymbolWithInsufficientHistory(t *testing.T) {
	fetcher := fakeFetcher{candles: map[string][]upstream.Candle{
		"frxEURUSD": risingCandles(2, 100),
	}}
	s := New(Config{CandleCount: 2, IndicatorPeriod: 14, Assets: []AssetConfig{{Symbol: "frxEURUSD"}}}, fetcher, nil, zerolog.Nop())

	s.runOnce(context.Background())
	status := s.Status()
	if len(status.LastResults) != 0 {
		t.Fatalf("expected no results for insufficient history, got %d", len(status.LastResults))
	}
	if len(status.Errors) != 1 {
		t.Fatalf("expected one recorded error, got %d", len(status.Errors))
	}
}

func TestStartAndStopDoNotPanic(t *testing.T) {
	s := New(Config{CronSpec: "@every 1h", CandleCount: 5, IndicatorPeriod: 2}, fakeFetcher{}, nil, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Status().IsRunning {
		t.Fatalf("expected scanner to report running after Start")
	}
	s.Stop()
	if s.Status().IsRunning {
		t.Fatalf("expected scanner to report stopped after Stop")
	}
}
