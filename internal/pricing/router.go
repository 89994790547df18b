package pricing

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Quoter is anything that can price a symbol
type Quoter interface {
	LivePrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Router sends crypto symbols to a dedicated provider and everything else to
// Alpha Vantage
type Router struct {
	primary *AlphaVantage
	crypto  Quoter
	log     logrus.FieldLogger
}

// NewRouter creates a Router. crypto may be nil, in which case Alpha Vantage
// prices crypto as well.
func NewRouter(primary *AlphaVantage, crypto Quoter, log logrus.FieldLogger) *Router {
	return &Router{primary: primary, crypto: crypto, log: log}
}

// LivePrice implements ledger.PriceSource
func (r *Router) LivePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if r.crypto != nil && r.primary.IsCrypto(symbol) {
		r.log.WithField("symbol", symbol).Debug("pricing via crypto provider")
		return r.crypto.LivePrice(ctx, symbol)
	}
	return r.primary.LivePrice(ctx, symbol)
}
