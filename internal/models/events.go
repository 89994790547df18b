package models

import "time"

// Ledger event type constants
const (
	EventTradeApplied       = "TRADE_APPLIED"
	EventPositionsRefreshed = "POSITIONS_REFRESHED"
	EventInvestmentDeleted  = "INVESTMENT_DELETED"
	EventTradeRequested     = "TRADE_REQUESTED"
)

// LedgerEvent is published to Kafka whenever ledger state changes
type LedgerEvent struct {
	EventType string          `json:"event_type"`
	UserID    int             `json:"user_id"`
	Symbol    string          `json:"symbol,omitempty"`
	Trade     *Trade          `json:"transaction,omitempty"`
	Position  *Position       `json:"investment,omitempty"`
	Refreshed []string        `json:"refreshed,omitempty"`
	Failed    []SymbolFailure `json:"failed,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// SymbolFailure records why a symbol could not be priced during a refresh
type SymbolFailure struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// TradeRequestEvent represents a Kafka message asking the ledger to apply a trade
type TradeRequestEvent struct {
	EventType string           `json:"event_type"`
	Source    string           `json:"source"`
	Timestamp string           `json:"timestamp"`
	Data      TradeRequestData `json:"data"`
}

// TradeRequestData carries the trade intent as strings, like broker feeds do
type TradeRequestData struct {
	RequestID string `json:"request_id"`
	UserID    int    `json:"user_id"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Quantity  string `json:"quantity"`
	Fees      string `json:"fees,omitempty"`
}
