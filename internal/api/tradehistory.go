package api

import (
	"context"

	"signalengine/internal/persistence"
)

// DocumentSinkTradeHistory adapts a persistence.DocumentSink to the
// TradeHistoryReader interface the trades handler depends on.
type DocumentSinkTradeHistory struct {
	Sink *persistence.DocumentSink
}

// RecentTrades implements TradeHistoryReader. With no document sink
// configured (persistence disabled) it returns an empty history rather
// than touching a nil Sink.
func (a DocumentSinkTradeHistory) RecentTrades(ctx context.Context, limit int) ([]TradeSummary, error) {
	if a.Sink == nil {
		return []TradeSummary{}, nil
	}
	records, err := a.Sink.RecentTrades(ctx, limit)
	if err != nil {
		return nil, err
	}
	summaries := make([]TradeSummary, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, TradeSummary{
			ContractID: r.ContractID,
			Symbol:     r.Symbol,
			TradeType:  r.TradeType,
			ProfitLoss: r.ProfitLoss,
			Status:     r.Status,
			TradeDate:  r.TradeDate,
		})
	}
	return summaries, nil
}
