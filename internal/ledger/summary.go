package ledger

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Summarize totals the ACTIVE positions of a user. Amounts are formatted in
// currency; INACTIVE positions are ignored.
func Summarize(userID int, currency string, positions []*models.Position) *models.PortfolioSummary {
	s := &models.PortfolioSummary{
		UserID:            userID,
		Currency:          currency,
		TotalCostBasis:    decimal.Zero,
		TotalCurrentValue: decimal.Zero,
	}
	for _, p := range positions {
		if !p.IsActive() {
			continue
		}
		s.ActivePositions++
		s.TotalCostBasis = s.TotalCostBasis.Add(p.CostBasis)
		s.TotalCurrentValue = s.TotalCurrentValue.Add(p.CurrentValue)
	}

	s.UnrealizedPnl = s.TotalCurrentValue.Sub(s.TotalCostBasis)
	s.UnrealizedPnlPct = decimal.Zero
	if s.TotalCostBasis.IsPositive() {
		s.UnrealizedPnlPct = s.UnrealizedPnl.Div(s.TotalCostBasis).Mul(hundred).Round(2)
	}

	s.FormattedCostBasis = formatMoney(s.TotalCostBasis, currency)
	s.FormattedValue = formatMoney(s.TotalCurrentValue, currency)
	s.FormattedPnl = formatMoney(s.UnrealizedPnl, currency)
	return s
}

func formatMoney(amount decimal.Decimal, currency string) string {
	// money.New never returns a nil currency, unknown codes get a default one
	cur := money.New(0, currency).Currency()
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}
