package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// PriceSource resolves a live unit price for a symbol
type PriceSource interface {
	LivePrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// TradeTx is the set of store operations available while the (user, symbol)
// lock is held
type TradeTx interface {
	// PositionForUpdate returns the locked position row, or nil, nil when absent
	PositionForUpdate(ctx context.Context, userID int, symbol string) (*models.Position, error)
	TradeExistsByRequestID(ctx context.Context, userID int, requestID string) (bool, error)
	InsertTrade(ctx context.Context, t *models.Trade) error
	SavePosition(ctx context.Context, p *models.Position) error
}

// Store is the persistence boundary of the engine
type Store interface {
	// WithTradeLock runs fn inside one transaction that serializes all trades on
	// the (userID, symbol) pair. fn returning an error rolls everything back.
	WithTradeLock(ctx context.Context, userID int, symbol string, fn func(tx TradeTx) error) error
	GetActivePositionsByUser(ctx context.Context, userID int) ([]*models.Position, error)
	// SavePositionPrices writes every valuation in one batch; each row's
	// last_price, last_price_at and current_value change together. It returns
	// the IDs of the positions that were still ACTIVE and got written.
	SavePositionPrices(ctx context.Context, prices []models.PositionPrice) ([]int, error)
}

// EventPublisher receives ledger events after they are committed
type EventPublisher interface {
	PublishTradeApplied(ctx context.Context, t *models.Trade, p *models.Position) error
	PublishPositionsRefreshed(ctx context.Context, userID int, refreshed []string, failed []models.SymbolFailure) error
}

// Engine applies trades to positions and revalues positions against a PriceSource
type Engine struct {
	store  Store
	prices PriceSource
	events EventPublisher
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewEngine creates a ledger engine
func NewEngine(store Store, prices PriceSource, log logrus.FieldLogger) *Engine {
	return &Engine{
		store:  store,
		prices: prices,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithEvents makes the engine publish committed changes to pub
func (e *Engine) WithEvents(pub EventPublisher) *Engine {
	e.events = pub
	return e
}

// ApplyTrade prices a trade request live and applies it to the user's position.
// The trade row and the position change commit together or not at all.
func (e *Engine) ApplyTrade(ctx context.Context, req models.TradeRequest) (*models.Trade, *models.Position, error) {
	symbol := NormalizeSymbol(req.Symbol)
	side := strings.ToUpper(strings.TrimSpace(req.Type))

	if err := validateRequest(req, symbol, side); err != nil {
		return nil, nil, err
	}

	price, err := e.prices.LivePrice(ctx, symbol)
	if err != nil {
		return nil, nil, fmt.Errorf("%w for %s: %w", models.ErrPriceUnavailable, symbol, err)
	}
	if !price.IsPositive() {
		return nil, nil, fmt.Errorf("%w: %s", models.ErrInvalidSymbol, symbol)
	}

	var trade *models.Trade
	var position *models.Position

	err = e.store.WithTradeLock(ctx, req.UserID, symbol, func(tx TradeTx) error {
		if req.RequestID != "" {
			exists, err := tx.TradeExistsByRequestID(ctx, req.UserID, req.RequestID)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: %s", models.ErrDuplicateTrade, req.RequestID)
			}
		}

		current, err := tx.PositionForUpdate(ctx, req.UserID, symbol)
		if err != nil {
			return err
		}

		now := e.now()
		next, err := Apply(current, req.UserID, symbol, side, req.Quantity, price, now)
		if err != nil {
			return err
		}

		t := &models.Trade{
			UserID:     req.UserID,
			Symbol:     symbol,
			Type:       side,
			Quantity:   req.Quantity,
			Price:      price,
			Fees:       req.Fees,
			RequestID:  req.RequestID,
			ExecutedAt: now,
		}
		if err := tx.InsertTrade(ctx, t); err != nil {
			return err
		}
		if err := tx.SavePosition(ctx, next); err != nil {
			return err
		}

		trade, position = t, next
		return nil
	})
	if err != nil {
		return nil, nil, classify(err)
	}

	e.log.WithFields(logrus.Fields{
		"user_id":  req.UserID,
		"symbol":   symbol,
		"side":     side,
		"quantity": req.Quantity.String(),
		"price":    price.String(),
		"units":    position.Units.String(),
		"status":   position.Status,
	}).Info("trade applied")

	if e.events != nil {
		if err := e.events.PublishTradeApplied(ctx, trade, position); err != nil {
			e.log.WithError(err).WithField("trade_id", trade.ID).Warn("failed to publish trade event")
		}
	}

	return trade, position, nil
}

// maxSymbolLength matches the width of the symbol columns
const maxSymbolLength = 32

func validateRequest(req models.TradeRequest, symbol, side string) error {
	switch {
	case symbol == "":
		return fmt.Errorf("%w: symbol is required", models.ErrInvalidTrade)
	case len(symbol) > maxSymbolLength:
		return fmt.Errorf("%w: symbol longer than %d characters", models.ErrInvalidTrade, maxSymbolLength)
	case side != models.TradeTypeBuy && side != models.TradeTypeSell:
		return fmt.Errorf("%w: type must be BUY or SELL, got %q", models.ErrInvalidTrade, req.Type)
	case !req.Quantity.IsPositive():
		return fmt.Errorf("%w: quantity must be positive", models.ErrInvalidTrade)
	case req.Fees.IsNegative():
		return fmt.Errorf("%w: fees cannot be negative", models.ErrInvalidTrade)
	case req.UserID <= 0:
		return fmt.Errorf("%w: user_id is required", models.ErrInvalidTrade)
	}
	return nil
}

var businessErrors = []error{
	models.ErrInvalidTrade,
	models.ErrInsufficientUnits,
	models.ErrDuplicateTrade,
	models.ErrDivisionByZero,
	models.ErrNotFound,
	models.ErrPersistence,
}

// classify leaves ledger errors untouched and tags everything else as a
// persistence failure
func classify(err error) error {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", models.ErrPersistence, err)
}
