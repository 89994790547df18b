package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrNoQuoteFound is returned when the upstream answers without a usable price
var ErrNoQuoteFound = errors.New("no quote found")

const (
	defaultAlphaVantageURL = "https://www.alphavantage.co/query"

	cryptoPricePath = `$["Realtime Currency Exchange Rate"]["5. Exchange Rate"]`
	stockPricePath  = `$["Global Quote"]["05. price"]`
)

// DefaultCryptoSymbols are quoted as currency exchange rates rather than listed stocks
var DefaultCryptoSymbols = []string{"BTC", "ETH", "LTC", "XRP", "DOGE"}

// AlphaVantageConfig configures the Alpha Vantage client
type AlphaVantageConfig struct {
	BaseURL       string
	APIKey        string
	Exchange      string // listing suffix for stocks, e.g. BSE
	QuoteCurrency string // currency crypto is priced in, e.g. INR
	CryptoSymbols []string
	Timeout       time.Duration
}

// AlphaVantage prices stocks with GLOBAL_QUOTE and crypto with CURRENCY_EXCHANGE_RATE
type AlphaVantage struct {
	baseURL       string
	apiKey        string
	exchange      string
	quoteCurrency string
	crypto        map[string]bool
	client        *http.Client
	log           logrus.FieldLogger
}

// NewAlphaVantage creates a client; zero config fields take the defaults
func NewAlphaVantage(cfg AlphaVantageConfig, log logrus.FieldLogger) *AlphaVantage {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAlphaVantageURL
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "BSE"
	}
	if cfg.QuoteCurrency == "" {
		cfg.QuoteCurrency = "INR"
	}
	if len(cfg.CryptoSymbols) == 0 {
		cfg.CryptoSymbols = DefaultCryptoSymbols
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &AlphaVantage{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		exchange:      cfg.Exchange,
		quoteCurrency: cfg.QuoteCurrency,
		crypto:        symbolSet(cfg.CryptoSymbols),
		client:        &http.Client{Timeout: cfg.Timeout},
		log:           log,
	}
}

// IsCrypto reports whether symbol is priced as a currency pair
func (a *AlphaVantage) IsCrypto(symbol string) bool {
	return a.crypto[strings.ToUpper(symbol)]
}

// LivePrice fetches the latest price for symbol
func (a *AlphaVantage) LivePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	params := url.Values{}
	params.Set("apikey", a.apiKey)
	path := stockPricePath
	if a.IsCrypto(symbol) {
		params.Set("function", "CURRENCY_EXCHANGE_RATE")
		params.Set("from_currency", symbol)
		params.Set("to_currency", a.quoteCurrency)
		path = cryptoPricePath
	} else {
		params.Set("function", "GLOBAL_QUOTE")
		params.Set("symbol", symbol+"."+a.exchange)
	}

	var body any
	if err := a.get(ctx, params, &body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}

	price, err := extractPrice(body, path)
	if err != nil {
		a.log.WithFields(logrus.Fields{
			"symbol": symbol,
			"path":   path,
		}).WithError(err).Warn("no usable quote in response")
		return decimal.Zero, fmt.Errorf("%w for %s: %w", ErrNoQuoteFound, symbol, err)
	}
	return price, nil
}

func (a *AlphaVantage) get(ctx context.Context, params url.Values, data any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: upstream status %s", ErrNoQuoteFound, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(data)
}

// extractPrice reads a numeric string or number at path
func extractPrice(body any, path string) (decimal.Decimal, error) {
	val, err := jsonpath.Get(path, body)
	if err != nil {
		return decimal.Zero, err
	}
	// jsonpath may wrap a single match in a list
	if list, ok := val.([]any); ok && len(list) > 0 {
		val = list[0]
	}

	switch v := val.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return decimal.Zero, errors.New("empty price")
		}
		return decimal.NewFromString(strings.TrimSpace(v))
	case float64:
		return decimal.NewFromFloat(v), nil
	}
	return decimal.Zero, fmt.Errorf("unexpected price value %v", val)
}

func symbolSet(symbols []string) map[string]bool {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	return set
}
