package pricing

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// BinanceConfig configures the Binance spot ticker client
type BinanceConfig struct {
	BaseURL    string
	QuoteAsset string // e.g. USDT, appended to the symbol to form the pair
	Timeout    time.Duration
}

// Binance prices crypto symbols from the public spot ticker
type Binance struct {
	client     *binance.Client
	quoteAsset string
}

// NewBinance creates a public-endpoint client; no API key is needed for tickers
func NewBinance(cfg BinanceConfig) *Binance {
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := binance.NewClient("", "")
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	client.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Binance{client: client, quoteAsset: strings.ToUpper(cfg.QuoteAsset)}
}

// LivePrice returns the last traded price of symbol against the quote asset
func (b *Binance) LivePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	pair := strings.ToUpper(strings.TrimSpace(symbol)) + b.quoteAsset

	prices, err := b.client.NewListPricesService().Symbol(pair).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch ticker %s: %w", pair, err)
	}

	for _, p := range prices {
		if p.Symbol != pair {
			continue
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w for %s: %w", ErrNoQuoteFound, pair, err)
		}
		return price, nil
	}
	return decimal.Zero, fmt.Errorf("%w for %s", ErrNoQuoteFound, pair)
}
