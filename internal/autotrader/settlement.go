package autotrader

import (
	"context"
	"strings"
	"time"

	"signalengine/internal/moneymanagement"
	"signalengine/internal/persistence"
	"signalengine/internal/upstream"
)

// handleContractEvent applies one contract update. It returns true when
// the update settled the contract and the lot's stop condition fired, in
// which case the session loop must exit.
func (s *Session) handleContractEvent(ctx context.Context, contractID string, update upstream.ContractUpdate) bool {
	meta, ok := s.contracts[contractID]
	if !ok {
		return false
	}
	if !isTerminalStatus(update) {
		s.hub.Broadcast("trade_update", tradeUpdateEvent{
			ContractID: contractID,
			Symbol:     meta.Symbol,
			Profit:     update.Profit.Float64(),
		})
		return false
	}
	return s.settle(ctx, contractID, meta, update)
}

func isTerminalStatus(update upstream.ContractUpdate) bool {
	if update.IsSold || update.IsExpired {
		return true
	}
	switch strings.ToLower(update.Status) {
	case "sold", "won", "lost":
		return true
	default:
		return false
	}
}

// settle folds a terminal contract update into the lot: it unregisters
// the contract, updates the money-management tracker and balance,
// rewrites the lot and day-trade logs, persists the trade record, and
// broadcasts the result. If the lot's stop condition fires, it broadcasts
// the final status and reports that the session loop must exit.
func (s *Session) settle(ctx context.Context, contractID string, meta contractMeta, update upstream.ContractUpdate) bool {
	delete(s.contracts, contractID)

	profit := update.Profit.Float64()
	isWin := s.money.Settle(meta.Symbol, profit)
	s.balance += profit
	s.tradeNoInLot++

	now := time.Now()
	winStatus := "loss"
	if isWin {
		winStatus = "win"
	}
	moneyType := "Fixed"
	if s.money.Mode == moneymanagement.ModeMartingale {
		moneyType = "Martingale"
	}

	stopReason := s.money.CheckStop()

	s.lotTrades = append(s.lotTrades, persistence.TradeObject{
		LotNo:            s.lotWriter.LotNo(),
		TradeNoOnThisLot: s.tradeNoInLot,
		TradeTime:        now.Format("02-01-2006 15:04:05"),
		Asset:            meta.Symbol,
		Action:           strings.ToLower(meta.ContractType),
		MoneyTrade:       meta.Stake,
		MoneyTradeType:   moneyType,
		WinStatus:        winStatus,
		Profit:           profit,
		BalanceOnLot:     s.balance,
		WinCon:           s.money.WinCount,
		LossCon:          s.money.TradeCount - s.money.WinCount,
		IsStopTrade:      stopReason != moneymanagement.StopNone,
	})
	if err := s.lotWriter.Write(s.lotTrades); err != nil {
		s.log.Warn().Err(err).Msg("lot log write failed")
	}

	s.dayTrades = append(s.dayTrades, persistence.DayTradeEntry{
		No:         len(s.dayTrades) + 1,
		ContractID: contractID,
		Symbol:     meta.Symbol,
		Type:       meta.ContractType,
		BuyPrice:   update.BuyPrice.Float64(),
		Payout:     update.Payout.Float64(),
		BuyTime:    meta.BuyTime.Format(time.RFC3339),
		Expiry:     update.DateExpiry.String(),
		MinProfit:  profit,
		MaxProfit:  profit,
		Profit:     profit,
		Action:     meta.ContractType,
	})
	day := persistence.DayTrade{
		LotNoCurrent:        s.lotWriter.LotNo(),
		DayTrade:            now.Format("2006-01-02"),
		StartTradeOfDay:     s.dayTrades[0].BuyTime,
		LastTradeOfDay:      now.Format(time.RFC3339),
		TotalTradeOnThisDay: len(s.dayTrades),
		TotalProfit:         s.money.GrandProfit,
		StatusofTrade:       string(stopReason),
		CurrentProfit:       s.money.GrandProfit,
		DayTradeList:        s.dayTrades,
	}
	if err := s.dayWriter.Write(day); err != nil {
		s.log.Warn().Err(err).Msg("day-trade log write failed")
	}

	record := persistence.TradeRecord{
		ContractID:   contractID,
		Symbol:       meta.Symbol,
		TradeType:    meta.ContractType,
		BuyPrice:     update.BuyPrice.Float64(),
		Payout:       update.Payout.Float64(),
		ProfitLoss:   profit,
		BuyTime:      meta.BuyTime.Format(time.RFC3339),
		ExpiryTime:   update.DateExpiry.String(),
		EntrySpot:    update.EntrySpot.Float64(),
		ExitSpot:     update.ExitSpot.Float64(),
		Status:       update.Status,
		LotNo:        s.lotWriter.LotNo(),
		TradeNoInLot: s.tradeNoInLot,
		TradeDate:    now.Format("2006-01-02"),
		CreatedAt:    now.Format("2006-01-02T15:04:05"),
	}
	if s.sink != nil {
		if err := s.sink.Save(ctx, "trades", record); err != nil {
			s.log.Warn().Err(err).Msg("document sink save failed")
		}
	}

	s.hub.Broadcast("trade_result", record)
	s.broadcastLotStatus()

	if stopReason == moneymanagement.StopNone {
		return false
	}

	s.stopReason = stopReason
	s.lotActive = false
	s.hub.Broadcast("auto_trade_status", statusEvent{Active: false, Reason: string(stopReason)})
	return true
}

func (s *Session) broadcastLotStatus() {
	s.hub.Broadcast("lot_status", lotStatusEvent{
		LotNo:       s.lotWriter.LotNo(),
		Balance:     s.balance,
		GrandProfit: s.money.GrandProfit,
		WinCount:    s.money.WinCount,
		TradeCount:  s.money.TradeCount,
		Mode:        string(s.money.Mode),
		Active:      s.lotActive,
	})
}
