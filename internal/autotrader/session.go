// Package autotrader runs the single cooperative session task: it owns
// every piece of per-symbol analysis state, the open-contract table, and
// the active lot's money-management tracker, all mutated exclusively
// from one goroutine's event loop. Every other package (the HTTP surface,
// the browser push hub) reaches the session only through its bounded
// control mailbox or through read-only snapshots it publishes out.
package autotrader

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"signalengine/config"
	"signalengine/internal/analysis"
	"signalengine/internal/broadcast"
	"signalengine/internal/cache"
	"signalengine/internal/candle"
	"signalengine/internal/engineerrors"
	"signalengine/internal/indicators"
	"signalengine/internal/moneymanagement"
	"signalengine/internal/persistence"
	"signalengine/internal/rulebook"
	"signalengine/internal/upstream"
)

// UpstreamClient is the subset of *upstream.Client the session drives. It
// exists so tests can swap in a fake feed without a real socket.
type UpstreamClient interface {
	Authorize(ctx context.Context, token string) (float64, error)
	FetchHistory(ctx context.Context, symbol string, count int) ([]upstream.Candle, error)
	SubscribeOHLC(ctx context.Context, symbol string) (*upstream.Subscription, error)
	Forget(subscriptionID string) error
	Buy(ctx context.Context, stake float64, params upstream.BuyParameters) (string, error)
	TrackContract(contractID string) (<-chan upstream.ContractUpdate, error)
	Sell(contractID string) error
}

// Config parameterizes one trading session.
type Config struct {
	Symbols        []string
	DefaultOptions config.AnalysisDefaultConfig

	UpstreamToken  string
	HistoryCount   int
	HistoryTimeout time.Duration
	BuyThrottle    time.Duration

	MoneyMode    moneymanagement.Mode
	InitialStake float64
	TargetProfit float64
	TargetWin    int

	ContractDuration     int
	ContractDurationUnit string
	Currency             string

	LotLogDir     string
	HistoryLogDir string
}

// Dependencies bundles the collaborators a Session needs beyond its
// Config; all are long-lived and shared with the rest of the process.
type Dependencies struct {
	Client   UpstreamClient
	Rulebook *rulebook.Book
	Hub      *broadcast.Hub
	Sink     *persistence.DocumentSink
	Cache    *cache.Cache
	Log      zerolog.Logger
}

const (
	controlMailboxSize  = 10
	ohlcEventBuffer     = 256
	contractEventBuffer = 64

	sessionSnapshotKey = "default"
	configSnapshotTTL  = 10 * time.Minute
)

type formingCandle struct {
	openTime               uint64
	open, high, low, close float64
}

type contractMeta struct {
	Symbol       string
	ContractType string
	Stake        float64
	BuyTime      time.Time
}

type ohlcEvent struct {
	symbol string
	candle upstream.Candle
}

type contractEvent struct {
	contractID string
	update     upstream.ContractUpdate
}

// Session is the single cooperative trading task. Every field below is
// touched only from the goroutine that calls Run.
type Session struct {
	id       string
	cfg      Config
	client   UpstreamClient
	rulebook *rulebook.Book
	money    *moneymanagement.Tracker
	hub      *broadcast.Hub
	sink     *persistence.DocumentSink
	cache    *cache.Cache
	log      zerolog.Logger

	lotWriter *persistence.LotLogWriter
	dayWriter *persistence.DayTradeLogWriter

	generators    map[string]*analysis.Generator
	forming       map[string]formingCandle
	subscriptions map[string]*upstream.Subscription
	contracts     map[string]contractMeta

	ohlcEvents     chan ohlcEvent
	contractEvents chan contractEvent
	control        chan Command

	balance      float64
	lotActive    bool
	stopReason   moneymanagement.StopReason
	tradeNoInLot int
	lotTrades    []persistence.TradeObject
	dayTrades    []persistence.DayTradeEntry

	ranFirstDecision   bool
	lastDecisionMinute int64
}

// NewSession constructs a Session ready to Run. It starts a new lot log
// for today and prepares today's day-trade log directory, so a failure
// here is a persistence-layer problem, not a trading one. Entries that an
// earlier process wrote to today's day-trade file are not loaded; the file
// is rewritten from this session's trades.
func NewSession(cfg Config, deps Dependencies) (*Session, error) {
	now := time.Now()
	lotWriter, err := persistence.NewLotLogWriter(cfg.LotLogDir, now)
	if err != nil {
		return nil, engineerrors.New(engineerrors.KindPersistence, "", "open lot log", err)
	}
	dayWriter, err := persistence.NewDayTradeLogWriter(cfg.HistoryLogDir, now)
	if err != nil {
		return nil, engineerrors.New(engineerrors.KindPersistence, "", "open day-trade log", err)
	}

	id := uuid.New().String()

	return &Session{
		id:       id,
		cfg:      cfg,
		client:   deps.Client,
		rulebook: deps.Rulebook,
		money:    moneymanagement.NewTracker(cfg.MoneyMode, cfg.InitialStake, cfg.TargetProfit, cfg.TargetWin),
		hub:      deps.Hub,
		sink:     deps.Sink,
		cache:    deps.Cache,
		log:      deps.Log.With().Str("component", "autotrader").Str("session_id", id).Logger(),

		lotWriter: lotWriter,
		dayWriter: dayWriter,

		generators:    make(map[string]*analysis.Generator),
		forming:       make(map[string]formingCandle),
		subscriptions: make(map[string]*upstream.Subscription),
		contracts:     make(map[string]contractMeta),

		ohlcEvents:     make(chan ohlcEvent, ohlcEventBuffer),
		contractEvents: make(chan contractEvent, contractEventBuffer),
		control:        make(chan Command, controlMailboxSize),

		lastDecisionMinute: -1,
	}, nil
}

// Run drives the session to completion: it authorizes, seeds every
// symbol's generator from history, opens live feeds, then processes
// control commands and market/contract events until told to stop or
// until the lot's stop condition fires.
func (s *Session) Run(ctx context.Context) error {
	if s.cfg.UpstreamToken != "" {
		balance, err := s.client.Authorize(ctx, s.cfg.UpstreamToken)
		if err != nil {
			return engineerrors.New(engineerrors.KindUpstream, "", "authorize", err)
		}
		s.balance = balance
	}

	if err := s.loadHistory(ctx); err != nil {
		return err
	}
	if err := s.subscribeAll(ctx); err != nil {
		return err
	}
	defer s.unsubscribeAll()

	s.lotActive = true
	s.hub.Broadcast("auto_trade_status", statusEvent{Active: true})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-s.control:
			if s.handleCommand(ctx, cmd) {
				return nil
			}
		case ev := <-s.ohlcEvents:
			s.handleOHLCFrame(ctx, ev.symbol, ev.candle)
		case ev := <-s.contractEvents:
			if s.handleContractEvent(ctx, ev.contractID, ev.update) {
				return nil
			}
		}
	}
}

// loadHistory fetches every symbol's history concurrently (the upstream
// client demultiplexes replies by symbol internally, so one request per
// symbol can be in flight at once) and seeds a fresh generator from each
// result. A symbol whose fetch or generator construction fails is
// excluded; trading continues with whatever symbols succeeded.
func (s *Session) loadHistory(ctx context.Context) error {
	timeout := s.cfg.HistoryTimeout
	if timeout <= 0 {
		timeout = upstream.DefaultHistoryFetchTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type histResult struct {
		symbol  string
		candles []upstream.Candle
		err     error
	}
	results := make(chan histResult, len(s.cfg.Symbols))
	for _, symbol := range s.cfg.Symbols {
		symbol := symbol
		go func() {
			candles, err := s.client.FetchHistory(fetchCtx, symbol, s.cfg.HistoryCount)
			results <- histResult{symbol: symbol, candles: candles, err: err}
		}()
	}

	for range s.cfg.Symbols {
		res := <-results
		if res.err != nil {
			s.log.Warn().Err(res.err).Str("symbol", res.symbol).Msg("history fetch failed, excluding symbol")
			continue
		}
		if err := s.seedGenerator(res.symbol, res.candles); err != nil {
			s.log.Warn().Err(err).Str("symbol", res.symbol).Msg("generator construction failed, excluding symbol")
		}
	}
	if len(s.generators) == 0 {
		return engineerrors.New(engineerrors.KindFetchTimeout, "", "no symbol history available", nil)
	}
	return nil
}

func (s *Session) seedGenerator(symbol string, candles []upstream.Candle) error {
	gen, err := analysis.New(symbol, optionsFromConfig(s.cfg.DefaultOptions))
	if err != nil {
		return err
	}
	for _, c := range candles {
		bar := candle.Candle{Time: c.Epoch, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close}
		if _, err := gen.AppendCandle(bar); err != nil {
			return err
		}
	}
	s.generators[symbol] = gen
	return nil
}

func optionsFromConfig(cfg config.AnalysisDefaultConfig) analysis.Options {
	return analysis.Options{
		Short:  analysis.MASpec{Type: indicators.MAType(cfg.ShortMAType), Period: cfg.ShortMAPeriod},
		Medium: analysis.MASpec{Type: indicators.MAType(cfg.MediumMAType), Period: cfg.MediumMAPeriod},
		Long:   analysis.MASpec{Type: indicators.MAType(cfg.LongMAType), Period: cfg.LongMAPeriod},

		ATRPeriod: cfg.ATRPeriod,
		BBPeriod:  cfg.BBPeriod,
		CIPeriod:  cfg.CIPeriod,
		ADXPeriod: cfg.ADXPeriod,
		RSIPeriod: cfg.RSIPeriod,

		ATRMultiplier: cfg.ATRMultiplier,
		FlatThreshold: cfg.FlatThreshold,
		MACDNarrow:    cfg.MACDNarrow,
	}
}

// subscribeAll opens a live OHLC feed for every symbol that survived
// history loading, and starts one forwarding goroutine per feed into the
// session's single ohlcEvents channel.
func (s *Session) subscribeAll(ctx context.Context) error {
	for symbol := range s.generators {
		sub, err := s.client.SubscribeOHLC(ctx, symbol)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("live subscribe failed, excluding symbol")
			delete(s.generators, symbol)
			continue
		}
		s.subscriptions[symbol] = sub
		go s.forwardOHLC(symbol, sub)
	}
	if len(s.subscriptions) == 0 {
		return engineerrors.New(engineerrors.KindUpstream, "", "no live subscriptions established", nil)
	}
	return nil
}

func (s *Session) forwardOHLC(symbol string, sub *upstream.Subscription) {
	for c := range sub.Candles {
		s.ohlcEvents <- ohlcEvent{symbol: symbol, candle: c}
	}
}

func (s *Session) unsubscribeAll() {
	for symbol, sub := range s.subscriptions {
		if err := s.client.Forget(sub.ID); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("forget failed")
		}
	}
}

// handleOHLCFrame applies one live tick to a symbol's forming-candle
// buffer. When the frame's open_time differs from the previously seen
// one, the prior forming candle is closed and fed to the generator
// before the buffer is replaced.
func (s *Session) handleOHLCFrame(ctx context.Context, symbol string, c upstream.Candle) {
	prev, exists := s.forming[symbol]
	if exists && c.OpenTime != prev.openTime {
		closed := candle.Candle{Time: prev.openTime, Open: prev.open, High: prev.high, Low: prev.low, Close: prev.close}
		if gen, ok := s.generators[symbol]; ok {
			if _, err := gen.AppendCandle(closed); err != nil {
				s.log.Warn().Err(err).Str("symbol", symbol).Msg("ordering error, dropping symbol")
				delete(s.generators, symbol)
				if sub, ok := s.subscriptions[symbol]; ok {
					if fErr := s.client.Forget(sub.ID); fErr != nil {
						s.log.Warn().Err(fErr).Str("symbol", symbol).Msg("forget after drop failed")
					}
					delete(s.subscriptions, symbol)
				}
				delete(s.forming, symbol)
				return
			}
		}
	}
	s.forming[symbol] = formingCandle{openTime: c.OpenTime, open: c.Open, high: c.High, low: c.Low, close: c.Close}
	s.maybeRunDecisionPass(ctx, c.Epoch)
}

// maybeRunDecisionPass fires the decision pass on the first processed
// frame, and thereafter once per elapsed minute, in the first five
// seconds of that minute.
func (s *Session) maybeRunDecisionPass(ctx context.Context, epoch uint64) {
	minute := int64(epoch / 60)
	if !s.ranFirstDecision || (epoch%60 <= 5 && minute > s.lastDecisionMinute) {
		s.ranFirstDecision = true
		s.lastDecisionMinute = minute
		s.runDecisionPass(ctx)
	}
}

func (s *Session) publishConfigSnapshot(ctx context.Context) {
	if s.cache == nil {
		return
	}
	putCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.cache.PutConfigSnapshot(putCtx, sessionSnapshotKey, s.cfg.DefaultOptions, configSnapshotTTL); err != nil {
		s.log.Warn().Err(err).Msg("config snapshot cache write failed")
	}
}
