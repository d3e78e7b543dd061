package autotrader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"signalengine/config"
	"signalengine/internal/analysis"
	"signalengine/internal/broadcast"
	"signalengine/internal/indicators"
	"signalengine/internal/logging"
	"signalengine/internal/moneymanagement"
	"signalengine/internal/rulebook"
	"signalengine/internal/upstream"
)

// fakeUpstream is a minimal, deterministic stand-in for *upstream.Client.
type fakeUpstream struct {
	mu sync.Mutex

	history    map[string][]upstream.Candle
	historyErr map[string]error

	ohlcChans map[string]chan upstream.Candle
	forgotten []string

	buys          []buyRecord
	contractChans map[string]chan upstream.ContractUpdate
	sells         []string

	authorizeBalance float64
	authorizeErr     error
}

type buyRecord struct {
	stake  float64
	params upstream.BuyParameters
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		history:       make(map[string][]upstream.Candle),
		historyErr:    make(map[string]error),
		ohlcChans:     make(map[string]chan upstream.Candle),
		contractChans: make(map[string]chan upstream.ContractUpdate),
	}
}

func (f *fakeUpstream) Authorize(ctx context.Context, token string) (float64, error) {
	return f.authorizeBalance, f.authorizeErr
}

func (f *fakeUpstream) FetchHistory(ctx context.Context, symbol string, count int) ([]upstream.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.historyErr[symbol]; ok {
		return nil, err
	}
	return f.history[symbol], nil
}

func (f *fakeUpstream) SubscribeOHLC(ctx context.Context, symbol string) (*upstream.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan upstream.Candle, 16)
	f.ohlcChans[symbol] = ch
	return &upstream.Subscription{ID: "sub-" + symbol, Candles: ch}, nil
}

func (f *fakeUpstream) Forget(subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, subscriptionID)
	return nil
}

func (f *fakeUpstream) Buy(ctx context.Context, stake float64, params upstream.BuyParameters) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("contract-%d", len(f.buys)+1)
	f.buys = append(f.buys, buyRecord{stake: stake, params: params})
	f.contractChans[id] = make(chan upstream.ContractUpdate, 4)
	return id, nil
}

func (f *fakeUpstream) TrackContract(contractID string) (<-chan upstream.ContractUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.contractChans[contractID]
	if !ok {
		return nil, fmt.Errorf("unknown contract %s", contractID)
	}
	return ch, nil
}

func (f *fakeUpstream) Sell(contractID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sells = append(f.sells, contractID)
	return nil
}

func (f *fakeUpstream) buyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buys)
}

func (f *fakeUpstream) lastBuy() buyRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buys[len(f.buys)-1]
}

func writeRulebookFile(t *testing.T, symbol, callCodes, putCodes string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rulebook.json")
	body := fmt.Sprintf(`[{"id":1,"assetCode":%q,"PUTSignal":%q,"CallSigNal":%q,"isActive":"Y"}]`, symbol, putCodes, callCodes)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write rulebook fixture: %v", err)
	}
	return path
}

func testAnalysisConfig() config.AnalysisDefaultConfig {
	return config.AnalysisDefaultConfig{
		ShortMAType: "SMA", ShortMAPeriod: 2,
		MediumMAType: "SMA", MediumMAPeriod: 3,
		LongMAType: "SMA", LongMAPeriod: 5,
		ATRPeriod: 3, BBPeriod: 3, CIPeriod: 3, ADXPeriod: 3, RSIPeriod: 3,
		ATRMultiplier: 2, FlatThreshold: 0.0001, MACDNarrow: 0.0002,
	}
}

func testOptions() analysis.Options {
	return analysis.Options{
		Short:  analysis.MASpec{Type: indicators.TypeSMA, Period: 2},
		Medium: analysis.MASpec{Type: indicators.TypeSMA, Period: 3},
		Long:   analysis.MASpec{Type: indicators.TypeSMA, Period: 5},

		ATRPeriod: 3, BBPeriod: 3, CIPeriod: 3, ADXPeriod: 3, RSIPeriod: 3,
		ATRMultiplier: 2, FlatThreshold: 0.0001, MACDNarrow: 0.0002,
	}
}

func buildSession(t *testing.T, client UpstreamClient, symbols []string) *Session {
	t.Helper()
	cfg := Config{
		Symbols:        symbols,
		DefaultOptions: testAnalysisConfig(),

		HistoryCount:   5,
		HistoryTimeout: 2 * time.Second,
		BuyThrottle:    time.Millisecond,

		MoneyMode:    moneymanagement.ModeFix,
		InitialStake: 1,
		TargetProfit: 1_000_000,

		ContractDuration:     5,
		ContractDurationUnit: "t",
		Currency:             "USD",

		LotLogDir:     t.TempDir(),
		HistoryLogDir: t.TempDir(),
	}

	book, err := rulebook.Load(writeRulebookFile(t, symbols[0], "", ""))
	if err != nil {
		t.Fatalf("rulebook.Load: %v", err)
	}

	sess, err := NewSession(cfg, Dependencies{
		Client:   client,
		Rulebook: book,
		Hub:      broadcast.NewHub(logging.Default()),
		Log:      logging.Default(),
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return sess
}

func TestClassifyDecisionMatchesRulebook(t *testing.T) {
	book, err := rulebook.Load(writeRulebookFile(t, "R_100", "7", "9"))
	if err != nil {
		t.Fatalf("rulebook.Load: %v", err)
	}

	if got := classifyDecision(book, "R_100", &analysis.Result{StatusCode: "7"}); got != decisionCall {
		t.Fatalf("decision = %s, want CALL", got)
	}
	if got := classifyDecision(book, "R_100", &analysis.Result{StatusCode: "9"}); got != decisionPut {
		t.Fatalf("decision = %s, want PUT", got)
	}
	if got := classifyDecision(book, "R_100", &analysis.Result{StatusCode: "3"}); got != decisionIdle {
		t.Fatalf("decision = %s, want IDLE", got)
	}
	if got := classifyDecision(book, "R_50", &analysis.Result{StatusCode: "7"}); got != decisionIdle {
		t.Fatalf("decision for unranked symbol = %s, want IDLE", got)
	}
}

func TestDispatchTradeBuysAndTracksContract(t *testing.T) {
	client := newFakeUpstream()
	sess := buildSession(t, client, []string{"R_100"})
	sess.lotActive = true

	sess.dispatchTrade(context.Background(), "R_100", decisionCall)

	if client.buyCount() != 1 {
		t.Fatalf("buy count = %d, want 1", client.buyCount())
	}
	buy := client.lastBuy()
	if buy.params.ContractType != "CALL" || buy.params.Symbol != "R_100" {
		t.Fatalf("buy params = %+v", buy.params)
	}
	if len(sess.contracts) != 1 {
		t.Fatalf("contracts tracked = %d, want 1", len(sess.contracts))
	}
}

func TestHandleOHLCFrameClosesFormingCandleOnBoundaryChange(t *testing.T) {
	sess := buildSession(t, newFakeUpstream(), []string{"R_100"})
	gen, err := analysis.New("R_100", testOptions())
	if err != nil {
		t.Fatalf("analysis.New: %v", err)
	}
	sess.generators["R_100"] = gen

	ctx := context.Background()
	sess.handleOHLCFrame(ctx, "R_100", upstream.Candle{OpenTime: 60, Epoch: 65, Open: 1, High: 2, Low: 0.5, Close: 1.5})
	if len(gen.Series()) != 0 {
		t.Fatalf("first frame should only seed the forming buffer, got %d sealed candles", len(gen.Series()))
	}

	sess.handleOHLCFrame(ctx, "R_100", upstream.Candle{OpenTime: 120, Epoch: 125, Open: 1.5, High: 2.5, Low: 1.4, Close: 2.0})
	series := gen.Series()
	if len(series) != 1 {
		t.Fatalf("expected 1 sealed candle after a boundary change, got %d", len(series))
	}
	if series[0].CandleTime != 60 {
		t.Fatalf("sealed candle time = %d, want 60", series[0].CandleTime)
	}
}

func TestSettleFixModeStopsAfterTargetProfitWithTwoOfThreeWins(t *testing.T) {
	sess := buildSession(t, newFakeUpstream(), []string{"R_100"})
	sess.money.TargetProfit = 15
	sess.lotActive = true

	outcomes := []float64{10, -5, 10}
	wantStop := []bool{false, false, true}
	for i, profit := range outcomes {
		contractID := fmt.Sprintf("c%d", i+1)
		sess.contracts[contractID] = contractMeta{Symbol: "R_100", ContractType: "CALL", Stake: 1, BuyTime: time.Now()}
		update := upstream.ContractUpdate{Status: "sold", Profit: upstream.FlexFloat(profit)}
		stopped := sess.handleContractEvent(context.Background(), contractID, update)
		if stopped != wantStop[i] {
			t.Fatalf("trade %d: stopped = %v, want %v", i+1, stopped, wantStop[i])
		}
	}
	if sess.money.GrandProfit != 15 {
		t.Fatalf("grand profit = %v, want 15", sess.money.GrandProfit)
	}
	if sess.money.TradeCount != 3 || sess.money.WinCount != 2 {
		t.Fatalf("trade/win count = %d/%d, want 3/2", sess.money.TradeCount, sess.money.WinCount)
	}
	if sess.lotActive {
		t.Fatal("lotActive should be false once the target profit stop fires")
	}
}

func TestSettleMartingaleStopsAfterTargetWinCount(t *testing.T) {
	sess := buildSession(t, newFakeUpstream(), []string{"R_100"})
	sess.cfg.MoneyMode = moneymanagement.ModeMartingale
	sess.money.Mode = moneymanagement.ModeMartingale
	sess.money.TargetWin = 2
	sess.lotActive = true

	outcomes := []float64{10, -5, 10}
	wantStop := []bool{false, false, true}
	for i, profit := range outcomes {
		contractID := fmt.Sprintf("m%d", i+1)
		sess.contracts[contractID] = contractMeta{Symbol: "R_100", ContractType: "PUT", Stake: 1, BuyTime: time.Now()}
		update := upstream.ContractUpdate{Status: "sold", Profit: upstream.FlexFloat(profit)}
		stopped := sess.handleContractEvent(context.Background(), contractID, update)
		if stopped != wantStop[i] {
			t.Fatalf("trade %d: stopped = %v, want %v", i+1, stopped, wantStop[i])
		}
	}
	if sess.money.WinCount != 2 {
		t.Fatalf("win count = %d, want 2", sess.money.WinCount)
	}
}

func TestHandleCommandUpdateModeSwitchesTracker(t *testing.T) {
	sess := buildSession(t, newFakeUpstream(), []string{"R_100"})
	sess.money.Mode = moneymanagement.ModeFix

	if stop := sess.handleCommand(context.Background(), Command{Kind: CmdUpdateMode, Mode: "martingale"}); stop {
		t.Fatal("UPDATE_MODE must not stop the loop")
	}
	if sess.money.Mode != moneymanagement.ModeMartingale {
		t.Fatalf("mode = %s, want martingale", sess.money.Mode)
	}
}

func TestHandleCommandSyncBroadcastsLotStatus(t *testing.T) {
	sess := buildSession(t, newFakeUpstream(), []string{"R_100"})
	sub := sess.hub.Register()
	defer sess.hub.Unregister(sub)

	if stop := sess.handleCommand(context.Background(), Command{Kind: CmdSync}); stop {
		t.Fatal("SYNC must not stop the loop")
	}

	select {
	case ev := <-sub.Events():
		if ev.Kind != "lot_status" {
			t.Fatalf("first broadcast kind = %s, want lot_status", ev.Kind)
		}
	default:
		t.Fatal("expected a lot_status broadcast from SYNC")
	}
}

func TestHandleCommandStopSetsReasonAndExits(t *testing.T) {
	sess := buildSession(t, newFakeUpstream(), []string{"R_100"})
	sess.lotActive = true

	if stop := sess.handleCommand(context.Background(), Command{Kind: CmdStop}); !stop {
		t.Fatal("STOP must signal the loop to exit")
	}
	if sess.lotActive {
		t.Fatal("lotActive should be false after STOP")
	}
	if sess.stopReason != moneymanagement.StopUser {
		t.Fatalf("stopReason = %s, want user", sess.stopReason)
	}
}

func TestRunStopsCleanlyOnStopCommand(t *testing.T) {
	symbol := "R_100"
	client := newFakeUpstream()
	client.history[symbol] = []upstream.Candle{{Epoch: 60, Open: 1, High: 1, Low: 1, Close: 1}}

	sess := buildSession(t, client, []string{symbol})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	if err := sess.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after STOP")
	}

	if len(client.forgotten) != 1 {
		t.Fatalf("forgotten subscriptions = %v, want exactly 1", client.forgotten)
	}
}

func TestRunExcludesSymbolOnHistoryFetchFailure(t *testing.T) {
	client := newFakeUpstream()
	client.history["R_100"] = []upstream.Candle{{Epoch: 60, Open: 1, High: 1, Low: 1, Close: 1}}
	client.historyErr["R_50"] = fmt.Errorf("upstream timeout")

	sess := buildSession(t, client, []string{"R_100", "R_50"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	if err := sess.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	<-done

	if _, ok := sess.generators["R_100"]; !ok {
		t.Fatal("R_100 should have a generator")
	}
	if _, ok := sess.generators["R_50"]; ok {
		t.Fatal("R_50 should have been excluded after its history fetch failed")
	}
}
