package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"signalengine/internal/engineerrors"
)

// TradeRecord is the shape persisted to the external document sink for
// every settled trade.
type TradeRecord struct {
	ContractID    string  `json:"contract_id"`
	Symbol        string  `json:"symbol"`
	TradeType     string  `json:"trade_type"`
	BuyPrice      float64 `json:"buy_price"`
	Payout        float64 `json:"payout"`
	ProfitLoss    float64 `json:"profit_loss"`
	BuyTime       string  `json:"buy_time"`
	ExpiryTime    string  `json:"expiry_time"`
	EntrySpot     float64 `json:"entry_spot"`
	ExitSpot      float64 `json:"exit_spot"`
	Status        string  `json:"status"`
	LotNo         int     `json:"lot_no"`
	TradeNoInLot  int     `json:"trade_no_in_lot"`
	TradeDate     string  `json:"trade_date"`
	CreatedAt     string  `json:"created_at"`
}

// DocumentID is "<trade_date>_<contract_id>", the sink's document key.
func (r TradeRecord) DocumentID() string {
	return fmt.Sprintf("%s_%s", r.TradeDate, r.ContractID)
}

// DocumentSink serializes writes behind a mutex to preserve call
// ordering, as required of the shared document sink resource; writes are
// best-effort and never fatal to the caller.
type DocumentSink struct {
	db  *DB
	log zerolog.Logger
	mu  sync.Mutex
}

// NewDocumentSink wraps a DB as the trade-record sink.
func NewDocumentSink(db *DB, log zerolog.Logger) *DocumentSink {
	return &DocumentSink{db: db, log: log}
}

// tradeDocumentsCollection is the collection name used for settled
// trades, as opposed to other document kinds the sink could hold.
const tradeDocumentsCollection = "trades"

// RecentTrades returns up to limit trade records, most recently updated
// first, for the HTTP surface's read-only trade-history endpoint.
func (s *DocumentSink) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.Pool.Query(readCtx, `
		SELECT body FROM trade_documents
		WHERE collection = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, tradeDocumentsCollection, limit)
	if err != nil {
		return nil, engineerrors.New(engineerrors.KindPersistence, "", "query recent trades", err)
	}
	defer rows.Close()

	records := make([]TradeRecord, 0, limit)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, engineerrors.New(engineerrors.KindPersistence, "", "scan trade record", err)
		}
		var record TradeRecord
		if err := json.Unmarshal(body, &record); err != nil {
			return nil, engineerrors.New(engineerrors.KindPersistence, "", "decode trade record", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, engineerrors.New(engineerrors.KindPersistence, "", "read recent trades", err)
	}
	return records, nil
}

// Save upserts a trade record into the given collection. Failures are
// logged and returned as a non-fatal PersistenceError; callers must not
// treat this as fatal to the session loop.
func (s *DocumentSink) Save(ctx context.Context, collection string, record TradeRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return engineerrors.New(engineerrors.KindPersistence, record.Symbol, "marshal trade record", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err = s.db.Pool.Exec(writeCtx, `
		INSERT INTO trade_documents (collection, doc_id, body, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (collection, doc_id) DO UPDATE SET body = EXCLUDED.body, updated_at = now()
	`, collection, record.DocumentID(), body)
	if err != nil {
		s.log.Warn().Err(err).Str("collection", collection).Str("doc_id", record.DocumentID()).Msg("document sink write failed")
		return engineerrors.New(engineerrors.KindPersistence, record.Symbol, "document sink write failed", err)
	}
	return nil
}
