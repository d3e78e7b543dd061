// Package upstream implements the WebSocket client for the upstream
// market-data/brokerage endpoint: history replay, live candle
// subscription, authorization, order placement, and contract tracking.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"signalengine/internal/engineerrors"
)

// Client owns a single upstream WebSocket connection. It is safe for
// concurrent use: writes are serialized, and inbound frames are
// demultiplexed to the right waiter by msg_type and subscription id.
type Client struct {
	url string
	log zerolog.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu             sync.Mutex
	historyWaiters map[string]chan historyResponse
	ohlcSubs       map[string]chan Candle
	contractSubs   map[string]chan ContractUpdate
	authWaiters    []chan authorizeResponse
	buyWaiters     []chan buyResponse

	closed chan struct{}
}

// Dial connects to the upstream endpoint and starts its read pump.
func Dial(ctx context.Context, url string, log zerolog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, engineerrors.New(engineerrors.KindUpstream, "", "dial upstream websocket", err)
	}
	c := &Client{
		url:            url,
		log:            log,
		conn:           conn,
		historyWaiters: make(map[string]chan historyResponse),
		ohlcSubs:       make(map[string]chan Candle),
		contractSubs:   make(map[string]chan ContractUpdate),
		closed:         make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close terminates the underlying connection.
func (c *Client) Close() error {
	select {
	case <-c.closed:
		return nil
	default:
		close(c.closed)
	}
	return c.conn.Close()
}

func (c *Client) send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// readLoop is the single reader goroutine; the session task never reads
// the socket directly. An unexpected close ends the loop cleanly.
func (c *Client) readLoop() {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Info().Err(err).Msg("upstream connection closed")
			c.drainWaiters()
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) drainWaiters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.historyWaiters {
		close(ch)
	}
	for _, ch := range c.ohlcSubs {
		close(ch)
	}
	for _, ch := range c.contractSubs {
		close(ch)
	}
	c.historyWaiters = map[string]chan historyResponse{}
	c.ohlcSubs = map[string]chan Candle{}
	c.contractSubs = map[string]chan ContractUpdate{}
}

func (c *Client) dispatch(msg []byte) {
	var probe struct {
		MsgType string `json:"msg_type"`
		Error   *wireError `json:"error"`
	}
	if err := json.Unmarshal(msg, &probe); err != nil {
		c.log.Warn().Err(err).Msg("malformed upstream frame")
		return
	}
	if probe.Error != nil {
		c.log.Warn().Str("code", probe.Error.Code).Str("message", probe.Error.Message).Msg("upstream error frame")
	}

	switch probe.MsgType {
	case "candles", "history":
		var resp historyResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			c.log.Warn().Err(err).Msg("malformed history frame")
			return
		}
		c.mu.Lock()
		ch, ok := c.historyWaiters[resp.EchoReq.TicksHistory]
		if ok {
			delete(c.historyWaiters, resp.EchoReq.TicksHistory)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
			close(ch)
		}
	case "ohlc":
		var frame ohlcFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			c.log.Warn().Err(err).Msg("malformed ohlc frame")
			return
		}
		c.mu.Lock()
		ch, ok := c.ohlcSubs[frame.Subscription.ID]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- Candle{OpenTime: frame.OHLC.OpenTime, Epoch: frame.OHLC.Epoch, Open: frame.OHLC.Open, High: frame.OHLC.High, Low: frame.OHLC.Low, Close: frame.OHLC.Close}:
			default:
				c.log.Warn().Str("symbol", frame.OHLC.Symbol).Msg("ohlc subscriber too slow, dropping tick")
			}
		}
	case "authorize":
		var resp authorizeResponse
		_ = json.Unmarshal(msg, &resp)
		c.mu.Lock()
		waiters := c.authWaiters
		c.authWaiters = nil
		c.mu.Unlock()
		for _, ch := range waiters {
			ch <- resp
			close(ch)
		}
	case "buy":
		var resp buyResponse
		_ = json.Unmarshal(msg, &resp)
		c.mu.Lock()
		waiters := c.buyWaiters
		c.buyWaiters = nil
		c.mu.Unlock()
		for _, ch := range waiters {
			ch <- resp
			close(ch)
		}
	case "proposal_open_contract":
		var frame contractFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			c.log.Warn().Err(err).Msg("malformed proposal_open_contract frame")
			return
		}
		c.mu.Lock()
		ch, ok := c.contractSubs[frame.ProposalOpenContract.ContractID.String()]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- frame.ProposalOpenContract:
			default:
			}
		}
	}
}

// Authorize exchanges the upstream bearer token for an account balance.
func (c *Client) Authorize(ctx context.Context, token string) (float64, error) {
	ch := make(chan authorizeResponse, 1)
	c.mu.Lock()
	c.authWaiters = append(c.authWaiters, ch)
	c.mu.Unlock()

	if err := c.send(authorizeRequest{Authorize: token}); err != nil {
		return 0, engineerrors.New(engineerrors.KindUpstream, "", "send authorize", err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return 0, engineerrors.New(engineerrors.KindUpstream, "", resp.Error.Message, nil)
		}
		return resp.Authorize.Balance, nil
	case <-ctx.Done():
		return 0, engineerrors.New(engineerrors.KindUpstream, "", "authorize timed out", ctx.Err())
	}
}

// FetchHistory requests the last count closed candles for a symbol.
func (c *Client) FetchHistory(ctx context.Context, symbol string, count int) ([]Candle, error) {
	ch := make(chan historyResponse, 1)
	c.mu.Lock()
	c.historyWaiters[symbol] = ch
	c.mu.Unlock()

	req := historyRequest{TicksHistory: symbol, Count: count, End: "latest", Style: "candles", Granularity: 60, AdjustStartTime: 1}
	if err := c.send(req); err != nil {
		return nil, engineerrors.New(engineerrors.KindFetchTimeout, symbol, "send history request", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, engineerrors.New(engineerrors.KindUpstream, symbol, "connection closed awaiting history", nil)
		}
		if resp.Error != nil {
			return nil, engineerrors.New(engineerrors.KindFetchTimeout, symbol, resp.Error.Message, nil)
		}
		out := make([]Candle, 0, len(resp.Candles))
		for _, rc := range resp.Candles {
			out = append(out, Candle{Epoch: rc.Epoch, Open: rc.Open, High: rc.High, Low: rc.Low, Close: rc.Close})
		}
		return out, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.historyWaiters, symbol)
		c.mu.Unlock()
		return nil, engineerrors.New(engineerrors.KindFetchTimeout, symbol, "history fetch timed out", ctx.Err())
	}
}

// Subscription is a live feed the caller must Forget when done with it.
type Subscription struct {
	ID      string
	Candles <-chan Candle
}

// SubscribeOHLC opens a live 1-minute candle feed for a symbol.
func (c *Client) SubscribeOHLC(ctx context.Context, symbol string) (*Subscription, error) {
	ch := make(chan historyResponse, 1)
	c.mu.Lock()
	c.historyWaiters[symbol] = ch
	c.mu.Unlock()

	req := subscribeRequest{historyRequest: historyRequest{TicksHistory: symbol, Count: 1, End: "latest", Style: "candles", Granularity: 60, AdjustStartTime: 1}, Subscribe: 1}
	if err := c.send(req); err != nil {
		return nil, engineerrors.New(engineerrors.KindUpstream, symbol, "send subscribe request", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, engineerrors.New(engineerrors.KindUpstream, symbol, "connection closed awaiting subscription", nil)
		}
		if resp.Error != nil {
			return nil, engineerrors.New(engineerrors.KindUpstream, symbol, resp.Error.Message, nil)
		}
		subID := resp.Subscription.ID
		candleCh := make(chan Candle, 4)
		c.mu.Lock()
		c.ohlcSubs[subID] = candleCh
		c.mu.Unlock()
		return &Subscription{ID: subID, Candles: candleCh}, nil
	case <-ctx.Done():
		return nil, engineerrors.New(engineerrors.KindUpstream, symbol, "subscribe timed out", ctx.Err())
	}
}

// Forget cancels a live subscription.
func (c *Client) Forget(subscriptionID string) error {
	c.mu.Lock()
	delete(c.ohlcSubs, subscriptionID)
	c.mu.Unlock()
	return c.send(forgetRequest{Forget: subscriptionID})
}

// Buy places a contract purchase and returns the upstream contract id.
func (c *Client) Buy(ctx context.Context, stake float64, params BuyParameters) (string, error) {
	ch := make(chan buyResponse, 1)
	c.mu.Lock()
	c.buyWaiters = append(c.buyWaiters, ch)
	c.mu.Unlock()

	params.Basis = "stake"
	params.Amount = stake
	if params.Currency == "" {
		params.Currency = "USD"
	}
	req := buyRequest{Buy: "1", Price: stake, Parameters: params}
	if err := c.send(req); err != nil {
		return "", engineerrors.New(engineerrors.KindUpstream, params.Symbol, "send buy request", err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return "", engineerrors.New(engineerrors.KindUpstream, params.Symbol, resp.Error.Message, nil)
		}
		return resp.Buy.ContractID.String(), nil
	case <-ctx.Done():
		return "", engineerrors.New(engineerrors.KindUpstream, params.Symbol, "buy timed out", ctx.Err())
	}
}

// TrackContract opens a live subscription of settlement updates for one
// contract. The channel closes when the connection is lost.
func (c *Client) TrackContract(contractID string) (<-chan ContractUpdate, error) {
	ch := make(chan ContractUpdate, 8)
	c.mu.Lock()
	c.contractSubs[contractID] = ch
	c.mu.Unlock()

	if err := c.send(trackContractRequest{ProposalOpenContract: 1, ContractID: FlexString(contractID), Subscribe: 1}); err != nil {
		return nil, engineerrors.New(engineerrors.KindUpstream, "", "send proposal_open_contract request", err)
	}
	return ch, nil
}

// Sell closes a contract at market.
func (c *Client) Sell(contractID string) error {
	if err := c.send(sellRequest{Sell: FlexString(contractID), Price: 0}); err != nil {
		return engineerrors.New(engineerrors.KindUpstream, "", "send sell request", err)
	}
	return nil
}

// WaitContractClosed blocks until a contract reaches a terminal status
// (sold/won/lost) or the context is done.
func WaitContractClosed(ctx context.Context, updates <-chan ContractUpdate) (ContractUpdate, error) {
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return ContractUpdate{}, fmt.Errorf("contract update stream closed")
			}
			if u.Status == "sold" || u.Status == "won" || u.Status == "lost" || u.IsSold {
				return u, nil
			}
		case <-ctx.Done():
			return ContractUpdate{}, ctx.Err()
		}
	}
}

// DefaultHistoryFetchTimeout is the collective history-fetch timeout the
// AutoTrader session applies at startup when its HistoryTimeout is not
// positive.
const DefaultHistoryFetchTimeout = 30 * time.Second
