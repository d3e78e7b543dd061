package api

import (
	"context"
	"testing"
)

func TestDocumentSinkTradeHistoryNilSinkReturnsEmpty(t *testing.T) {
	a := DocumentSinkTradeHistory{}
	trades, err := a.RecentTrades(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentTrades with nil sink returned error: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("RecentTrades with nil sink = %v, want empty", trades)
	}
}
