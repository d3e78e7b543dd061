package autotrader

// statusEvent is the "auto_trade_status" broadcast payload.
type statusEvent struct {
	Active bool   `json:"active"`
	Reason string `json:"reason,omitempty"`
}

// lotStatusEvent is the "lot_status" broadcast payload, published after
// every settlement and on SYNC.
type lotStatusEvent struct {
	LotNo       int     `json:"lot_no"`
	Balance     float64 `json:"balance"`
	GrandProfit float64 `json:"grand_profit"`
	WinCount    int     `json:"win_count"`
	TradeCount  int     `json:"trade_count"`
	Mode        string  `json:"mode"`
	Active      bool    `json:"active"`
}

// tradeOpenedEvent is the "trade_opened" broadcast payload.
type tradeOpenedEvent struct {
	ContractID string  `json:"contract_id"`
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"`
	Stake      float64 `json:"stake"`
}

// tradeUpdateEvent is the "trade_update" broadcast payload, sent for
// every non-terminal contract update.
type tradeUpdateEvent struct {
	ContractID string  `json:"contract_id"`
	Symbol     string  `json:"symbol"`
	Profit     float64 `json:"profit"`
}
