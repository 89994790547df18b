package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade side constants
const (
	TradeTypeBuy  = "BUY"
	TradeTypeSell = "SELL"
)

// Trade is an immutable buy/sell event (the transactions table)
type Trade struct {
	ID         int             `json:"id"`
	UserID     int             `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Type       string          `json:"type"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Fees       decimal.Decimal `json:"fees"`
	RequestID  string          `json:"request_id,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// TradeRequest is the intent submitted by a client; the price is never user supplied
type TradeRequest struct {
	UserID    int             `json:"user_id"`
	Symbol    string          `json:"symbol"`
	Type      string          `json:"type"`
	Quantity  decimal.Decimal `json:"quantity"`
	Fees      decimal.Decimal `json:"fees"`
	RequestID string          `json:"request_id,omitempty"`
}
