package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DayTradeEntry is one row in a day's trade list.
type DayTradeEntry struct {
	No         int     `json:"No"`
	ContractID string  `json:"ContractID"`
	Symbol     string  `json:"Symbol"`
	StatusCode string  `json:"StatusCode"`
	Type       string  `json:"Type"`
	BuyPrice   float64 `json:"BuyPrice"`
	Payout     float64 `json:"Payout"`
	BuyTime    string  `json:"BuyTime"`
	Expiry     string  `json:"Expiry"`
	Remaining  string  `json:"Remaining"`
	MinProfit  float64 `json:"MinProfit"`
	MaxProfit  float64 `json:"MaxProfit"`
	Profit     float64 `json:"Profit"`
	Action     string  `json:"Action"`
}

// DayTrade is the aggregate summary nested under the day-trade file.
type DayTrade struct {
	LotNoCurrent        int             `json:"LotNoCurrent"`
	DayTrade            string          `json:"DayTrade"`
	StartTradeOfDay     string          `json:"StartTradeOfDay"`
	LastTradeOfDay      string          `json:"LastTradeOfDay"`
	TotalTradeOnThisDay int             `json:"TotalTradeOnThisDay"`
	TotalProfit         float64         `json:"TotalProfit"`
	StatusofTrade       string          `json:"StatusofTrade"`
	CurrentProfit       float64         `json:"CurrentProfit"`
	DayTradeList        []DayTradeEntry `json:"DayTradeList"`
}

// DayTradeFile is the on-disk shape of tradeHistory/<date>/trade.json.
type DayTradeFile struct {
	DayTrade DayTrade `json:"DayTrade"`
}

// DayTradeLogWriter is the session task's sole writer for one day's trade
// file.
type DayTradeLogWriter struct {
	baseDir string
	date    time.Time
}

// NewDayTradeLogWriter opens today's trade-history directory.
func NewDayTradeLogWriter(baseDir string, date time.Time) (*DayTradeLogWriter, error) {
	dir := filepath.Join(baseDir, date.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create day-trade log dir: %w", err)
	}
	return &DayTradeLogWriter{baseDir: baseDir, date: date}, nil
}

func (w *DayTradeLogWriter) path() string {
	return filepath.Join(w.baseDir, w.date.Format("2006-01-02"), "trade.json")
}

// Write replaces the whole day-trade file.
func (w *DayTradeLogWriter) Write(day DayTrade) error {
	body, err := json.MarshalIndent(DayTradeFile{DayTrade: day}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal day-trade log: %w", err)
	}
	return os.WriteFile(w.path(), body, 0o644)
}

// Load reads back an existing day-trade file, if any, to resume a
// partially-completed day across restarts.
func Load(path string) (DayTradeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DayTradeFile{}, err
	}
	var f DayTradeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return DayTradeFile{}, err
	}
	return f, nil
}
