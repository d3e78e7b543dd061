package autotrader

import (
	"context"
	"time"

	"signalengine/internal/analysis"
	"signalengine/internal/rulebook"
	"signalengine/internal/upstream"
)

type decisionKind string

const (
	decisionCall decisionKind = "CALL"
	decisionPut  decisionKind = "PUT"
	decisionIdle decisionKind = "IDLE"
)

// defaultBuyThrottle separates consecutive buy dispatches within one
// decision pass when the config doesn't set one explicitly.
const defaultBuyThrottle = 300 * time.Millisecond

// symbolDecision is one symbol's entry in a "decision" broadcast.
type symbolDecision struct {
	Symbol     string       `json:"symbol"`
	StatusCode string       `json:"status_code"`
	StatusDesc string       `json:"status_desc"`
	Decision   decisionKind `json:"decision"`
	Close      float64      `json:"close"`
}

// runDecisionPass evaluates every tracked symbol's latest result against
// the rulebook, dispatching a trade for any CALL/PUT match while the lot
// is still active, and broadcasts the aggregate verdict.
func (s *Session) runDecisionPass(ctx context.Context) {
	decisions := make([]symbolDecision, 0, len(s.generators))
	for symbol, gen := range s.generators {
		result, ok := gen.Latest()
		if !ok {
			continue
		}

		decision := classifyDecision(s.rulebook, symbol, result)
		decisions = append(decisions, symbolDecision{
			Symbol:     symbol,
			StatusCode: result.StatusCode,
			StatusDesc: result.StatusDesc,
			Decision:   decision,
			Close:      result.Close,
		})

		if decision != decisionIdle && s.lotActive {
			s.dispatchTrade(ctx, symbol, decision)
		}
	}
	s.hub.Broadcast("decision", decisions)
}

// classifyDecision maps one symbol's latest result against the rulebook.
// A symbol with no active rulebook entry is always IDLE.
func classifyDecision(book *rulebook.Book, symbol string, result *analysis.Result) decisionKind {
	rule, ok := book.Lookup(symbol)
	if !ok {
		return decisionIdle
	}
	switch {
	case rule.MatchesCall(result.StatusCode):
		return decisionCall
	case rule.MatchesPut(result.StatusCode):
		return decisionPut
	default:
		return decisionIdle
	}
}

// dispatchTrade buys one contract for symbol, wires its contract table
// entry, and starts forwarding its updates into the event loop.
func (s *Session) dispatchTrade(ctx context.Context, symbol string, decision decisionKind) {
	stake := s.money.Stake(symbol)
	if s.cfg.UpstreamToken != "" && s.balance < stake {
		s.log.Warn().Str("symbol", symbol).Float64("stake", stake).Float64("balance", s.balance).
			Msg("insufficient balance, skipping trade")
		return
	}

	contractType := "CALL"
	if decision == decisionPut {
		contractType = "PUT"
	}
	params := upstream.BuyParameters{
		ContractType: contractType,
		Symbol:       symbol,
		Duration:     s.cfg.ContractDuration,
		DurationUnit: s.cfg.ContractDurationUnit,
		Currency:     s.cfg.Currency,
	}

	contractID, err := s.client.Buy(ctx, stake, params)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("buy dispatch failed")
		return
	}

	updates, err := s.client.TrackContract(contractID)
	if err != nil {
		s.log.Warn().Err(err).Str("contract_id", contractID).Msg("track contract failed")
		return
	}

	s.contracts[contractID] = contractMeta{
		Symbol:       symbol,
		ContractType: contractType,
		Stake:        stake,
		BuyTime:      time.Now(),
	}
	go s.forwardContractUpdates(contractID, updates)

	s.hub.Broadcast("trade_opened", tradeOpenedEvent{
		ContractID: contractID,
		Symbol:     symbol,
		Type:       contractType,
		Stake:      stake,
	})

	throttle := s.cfg.BuyThrottle
	if throttle <= 0 {
		throttle = defaultBuyThrottle
	}
	select {
	case <-time.After(throttle):
	case <-ctx.Done():
	}
}

func (s *Session) forwardContractUpdates(contractID string, updates <-chan upstream.ContractUpdate) {
	for u := range updates {
		s.contractEvents <- contractEvent{contractID: contractID, update: u}
	}
}
