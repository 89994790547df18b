package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position status constants
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

// AssetTypeAuto marks positions created by the ledger from a trade
const AssetTypeAuto = "AUTO"

// Position represents a user's holding in one symbol (the investments table)
type Position struct {
	ID           int             `json:"id"`
	UserID       int             `json:"user_id"`
	AssetType    string          `json:"asset_type"`
	Symbol       string          `json:"symbol"`
	Units        decimal.Decimal `json:"units"`
	AvgBuyPrice  decimal.Decimal `json:"avg_buy_price"`
	CostBasis    decimal.Decimal `json:"cost_basis"`
	CurrentValue decimal.Decimal `json:"current_value"`
	LastPrice    decimal.Decimal `json:"last_price"`
	LastPriceAt  *time.Time      `json:"last_price_at,omitempty"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsActive reports whether the position currently holds units
func (p *Position) IsActive() bool {
	return p.Status == StatusActive
}

// Clone returns a copy that shares no pointers with p
func (p *Position) Clone() *Position {
	c := *p
	if p.LastPriceAt != nil {
		at := *p.LastPriceAt
		c.LastPriceAt = &at
	}
	return &c
}

// PositionPrice is a fetched valuation for one position
type PositionPrice struct {
	PositionID int
	Price      decimal.Decimal
	PricedAt   time.Time
}

// PortfolioSummary aggregates the active positions of a user
type PortfolioSummary struct {
	UserID             int             `json:"user_id"`
	Currency           string          `json:"currency"`
	ActivePositions    int             `json:"active_positions"`
	TotalCostBasis     decimal.Decimal `json:"total_cost_basis"`
	TotalCurrentValue  decimal.Decimal `json:"total_current_value"`
	UnrealizedPnl      decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnlPct   decimal.Decimal `json:"unrealized_pnl_pct"`
	FormattedCostBasis string          `json:"formatted_cost_basis"`
	FormattedValue     string          `json:"formatted_current_value"`
	FormattedPnl       string          `json:"formatted_unrealized_pnl"`
}
