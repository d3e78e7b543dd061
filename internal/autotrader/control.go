package autotrader

import (
	"context"

	"signalengine/config"
	"signalengine/internal/moneymanagement"
)

// CommandKind names one control-mailbox message.
type CommandKind string

const (
	CmdStop         CommandKind = "STOP"
	CmdSync         CommandKind = "SYNC"
	CmdSell         CommandKind = "SELL"
	CmdUpdateParams CommandKind = "UPDATE_PARAMS"
	CmdUpdateMode   CommandKind = "UPDATE_MODE"
)

// Command is one message accepted onto the session's bounded control
// mailbox. It is always drained between two consecutive reads of the
// event channels, so the mutation it makes is atomic with respect to the
// rest of the loop.
type Command struct {
	Kind       CommandKind
	ContractID string
	Params     config.AnalysisDefaultConfig
	Mode       string
}

// UpdateParams implements api.ControlPlane.
func (s *Session) UpdateParams(ctx context.Context, cfg config.AnalysisDefaultConfig) error {
	return s.enqueue(ctx, Command{Kind: CmdUpdateParams, Params: cfg})
}

// UpdateMode implements api.ControlPlane.
func (s *Session) UpdateMode(ctx context.Context, mode string) error {
	return s.enqueue(ctx, Command{Kind: CmdUpdateMode, Mode: mode})
}

// Stop requests a clean shutdown of the session loop.
func (s *Session) Stop(ctx context.Context) error {
	return s.enqueue(ctx, Command{Kind: CmdStop})
}

// Sync requests a rebroadcast of the lot status and every tracked
// symbol's latest marker, for a browser socket that just reconnected.
func (s *Session) Sync(ctx context.Context) error {
	return s.enqueue(ctx, Command{Kind: CmdSync})
}

// SellContract requests an early sell of an open contract.
func (s *Session) SellContract(ctx context.Context, contractID string) error {
	return s.enqueue(ctx, Command{Kind: CmdSell, ContractID: contractID})
}

func (s *Session) enqueue(ctx context.Context, cmd Command) error {
	select {
	case s.control <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleCommand processes one command drained from the control mailbox.
// It returns true when the session loop must exit.
func (s *Session) handleCommand(ctx context.Context, cmd Command) bool {
	switch cmd.Kind {
	case CmdStop:
		s.stopReason = moneymanagement.StopUser
		s.lotActive = false
		s.hub.Broadcast("auto_trade_status", statusEvent{Active: false, Reason: string(s.stopReason)})
		return true

	case CmdSync:
		s.broadcastLotStatus()
		for symbol, gen := range s.generators {
			if r, ok := gen.Latest(); ok {
				s.hub.Broadcast("history_marker", map[string]interface{}{
					"symbol":      symbol,
					"status_code": r.StatusCode,
					"candle_time": r.CandleTime,
				})
			}
		}
		return false

	case CmdSell:
		if err := s.client.Sell(cmd.ContractID); err != nil {
			s.log.Warn().Err(err).Str("contract_id", cmd.ContractID).Msg("sell dispatch failed")
		}
		return false

	case CmdUpdateParams:
		s.cfg.DefaultOptions = cmd.Params
		s.publishConfigSnapshot(ctx)
		return false

	case CmdUpdateMode:
		switch cmd.Mode {
		case "fix":
			s.money.Mode = moneymanagement.ModeFix
		case "martingale":
			s.money.Mode = moneymanagement.ModeMartingale
		default:
			s.log.Warn().Str("mode", cmd.Mode).Msg("unknown money-management mode, ignoring")
		}
		return false

	default:
		return false
	}
}
