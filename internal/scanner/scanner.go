// Package scanner runs a periodic, cron-scheduled ranking pass over a
// configured asset list: for each symbol it fetches recent candles,
// computes Choppiness Index and ADX, scores and ranks the symbols, and keeps
// the ranked results in its in-memory Status. When SaveToSink is set, it
// also saves one record per ranked symbol to the document sink carrying only
// the symbol, scan date and a scan id; price, CI, ADX, score and rank are
// not stored there. It runs independently of any AutoTrader session and
// keeps going across browser disconnects.
package scanner

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"signalengine/internal/candle"
	"signalengine/internal/indicators"
	"signalengine/internal/persistence"
	"signalengine/internal/upstream"
)

// recentCandleWindow bounds how many trailing candle colors are packed
// into Result.RecentCandles.
const recentCandleWindow = 10

var errNotEnoughHistory = errors.New("scanner: not enough history for configured indicator period")

// AssetConfig names one symbol the scanner ranks each pass.
type AssetConfig struct {
	Symbol string
	Name   string
}

// Config configures one scanner run.
type Config struct {
	CronSpec        string
	CandleCount     int
	IndicatorPeriod int
	SaveToSink      bool
	Assets          []AssetConfig
}

// Result is one symbol's ranking for a single scan pass.
type Result struct {
	Symbol        string
	Price         float64
	CI            float64
	ADX           float64
	Score         float64
	IsBullish     bool
	RecentCandles string
	ScanTime      time.Time
	Rank          int
}

// Status is the scanner's current operating snapshot, read by the HTTP
// surface.
type Status struct {
	IsRunning          bool
	TotalScans         uint64
	TotalRecordsSaved  uint64
	LastScanTime       time.Time
	LastResults        []Result
	Errors             []string
}

// Fetcher is the subset of the upstream client a scan pass needs.
type Fetcher interface {
	FetchHistory(ctx context.Context, symbol string, count int) ([]upstream.Candle, error)
}

// Scanner owns the cron schedule and in-memory status snapshot.
type Scanner struct {
	cfg     Config
	fetcher Fetcher
	sink    *persistence.DocumentSink
	log     zerolog.Logger

	cronID  cron.EntryID
	c       *cron.Cron
	status  Status
}

// New constructs a Scanner. It does not start running until Start.
func New(cfg Config, fetcher Fetcher, sink *persistence.DocumentSink, log zerolog.Logger) *Scanner {
	return &Scanner{cfg: cfg, fetcher: fetcher, sink: sink, log: log}
}

// Start schedules the periodic scan pass via the configured cron spec.
func (s *Scanner) Start(ctx context.Context) error {
	s.c = cron.New()
	id, err := s.c.AddFunc(s.cfg.CronSpec, func() { s.runOnce(ctx) })
	if err != nil {
		return err
	}
	s.cronID = id
	s.c.Start()
	s.status.IsRunning = true
	return nil
}

// Stop cancels the cron schedule; an in-flight scan pass still completes.
func (s *Scanner) Stop() {
	if s.c != nil {
		s.c.Remove(s.cronID)
		s.c.Stop()
	}
	s.status.IsRunning = false
}

// Status returns a copy of the current scanner status.
func (s *Scanner) Status() Status {
	return s.status
}

func (s *Scanner) runOnce(ctx context.Context) {
	results := make([]Result, 0, len(s.cfg.Assets))
	var scanErrors []string

	for _, asset := range s.cfg.Assets {
		r, err := s.scanOne(ctx, asset)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", asset.Symbol).Msg("scan pass failed for symbol")
			scanErrors = append(scanErrors, asset.Symbol+": "+err.Error())
			continue
		}
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	for i := range results {
		results[i].Rank = i + 1
	}

	s.status.TotalScans++
	s.status.LastScanTime = time.Now()
	s.status.LastResults = results
	s.status.Errors = scanErrors

	if s.cfg.SaveToSink && s.sink != nil {
		for _, r := range results {
			rec := persistence.TradeRecord{
				Symbol:    r.Symbol,
				TradeDate: r.ScanTime.Format("2006-01-02"),
				ContractID: "scan_" + r.ScanTime.Format("150405"),
			}
			if err := s.sink.Save(ctx, "scanner_results", rec); err != nil {
				s.log.Warn().Err(err).Str("symbol", r.Symbol).Msg("scanner result save failed")
				continue
			}
			s.status.TotalRecordsSaved++
		}
	}
}

func (s *Scanner) scanOne(ctx context.Context, asset AssetConfig) (Result, error) {
	period := s.cfg.IndicatorPeriod
	candles, err := s.fetcher.FetchHistory(ctx, asset.Symbol, s.cfg.CandleCount)
	if err != nil {
		return Result{}, err
	}
	if len(candles) < period+1 {
		return Result{}, errNotEnoughHistory
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	atrs := make([]float64, len(candles))
	atrTracker := indicators.NewATRTracker(period)
	adxTracker := indicators.NewADXTracker(period)

	var adx float64
	for i, c := range candles {
		highs[i], lows[i] = c.High, c.Low
		curr := toCandle(c)

		var prev candle.Candle
		hasPrev := i > 0
		if hasPrev {
			prev = toCandle(candles[i-1])
		}
		atrs[i] = atrTracker.Update(curr.TrueRange(optionalPrev(prev, hasPrev)))
		if hasPrev {
			if v, ok := adxTracker.Update(curr, prev, true); ok {
				adx = v
			}
		}
	}

	ci, ciOK := indicators.ChoppinessIndex(highs, lows, atrs, period)
	if !ciOK {
		ci = 0
	}

	last := candles[len(candles)-1]
	return Result{
		Symbol:        asset.Symbol,
		Price:         last.Close,
		CI:            ci,
		ADX:           adx,
		Score:         adx + (100 - ci),
		IsBullish:     last.Close >= last.Open,
		RecentCandles: recentCandleColors(candles),
		ScanTime:      time.Now(),
	}, nil
}

// recentCandleColors packs the last recentCandleWindow candles' body colors
// into a comma-separated "up"/"down" string, oldest first.
func recentCandleColors(candles []upstream.Candle) string {
	n := recentCandleWindow
	if n > len(candles) {
		n = len(candles)
	}
	tail := candles[len(candles)-n:]
	colors := make([]string, len(tail))
	for i, c := range tail {
		if toCandle(c).ColorOf() == candle.Red {
			colors[i] = "down"
		} else {
			colors[i] = "up"
		}
	}
	return strings.Join(colors, ",")
}

func toCandle(c upstream.Candle) candle.Candle {
	return candle.Candle{Time: c.Epoch, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close}
}

func optionalPrev(c candle.Candle, has bool) *candle.Candle {
	if !has {
		return nil
	}
	return &c
}
