package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// NormalizeSymbol trims and upper-cases a ticker
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Apply computes the position that results from executing one trade against
// current. current may be nil when the user has never held the symbol. The input
// is never mutated; the returned position carries the same ID so the caller can
// decide between insert and update.
//
// BUY accumulates units and cost and recomputes the weighted average price. A row
// left INACTIVE by an earlier full sell is reused as-is, residual cost included.
// SELL removes cost at the average price and never touches avgBuyPrice.
func Apply(current *models.Position, userID int, symbol, side string, quantity, price decimal.Decimal, now time.Time) (*models.Position, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive, got %s", models.ErrInvalidTrade, quantity)
	}

	var next *models.Position
	switch side {
	case models.TradeTypeBuy:
		if current == nil {
			next = &models.Position{
				UserID:      userID,
				AssetType:   models.AssetTypeAuto,
				Symbol:      symbol,
				Units:       quantity,
				AvgBuyPrice: price,
				CostBasis:   quantity.Mul(price),
			}
			break
		}
		next = current.Clone()
		units := next.Units.Add(quantity)
		if units.IsZero() {
			return nil, models.ErrDivisionByZero
		}
		next.CostBasis = next.CostBasis.Add(quantity.Mul(price))
		next.Units = units
		next.AvgBuyPrice = next.CostBasis.Div(units)

	case models.TradeTypeSell:
		if current == nil {
			return nil, fmt.Errorf("%w: no %s position", models.ErrInsufficientUnits, symbol)
		}
		if quantity.GreaterThan(current.Units) {
			return nil, fmt.Errorf("%w: selling %s %s but holding %s",
				models.ErrInsufficientUnits, quantity, symbol, current.Units)
		}
		next = current.Clone()
		next.Units = next.Units.Sub(quantity)
		next.CostBasis = next.CostBasis.Sub(next.AvgBuyPrice.Mul(quantity))

	default:
		return nil, fmt.Errorf("%w: unknown side %q", models.ErrInvalidTrade, side)
	}

	if next.Units.IsZero() {
		next.Status = models.StatusInactive
	} else {
		next.Status = models.StatusActive
	}

	at := now
	next.LastPrice = price
	next.LastPriceAt = &at
	next.CurrentValue = next.Units.Mul(price)
	return next, nil
}
