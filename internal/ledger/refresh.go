package ledger

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

const positionClosedReason = "position is no longer active"

// RefreshResult lists which symbols were revalued and which were skipped
type RefreshResult struct {
	UserID    int                    `json:"user_id"`
	Refreshed []string               `json:"updated_symbols"`
	Failed    []models.SymbolFailure `json:"failed"`
}

// RefreshPositions revalues every ACTIVE position of a user. A symbol whose
// price cannot be fetched, or whose position was closed before the write, is
// recorded in Failed and its row is left untouched; the sweep always visits
// every position. Only a store failure is returned as an error.
func (e *Engine) RefreshPositions(ctx context.Context, userID int) (*RefreshResult, error) {
	positions, err := e.store.GetActivePositionsByUser(ctx, userID)
	if err != nil {
		return nil, classify(err)
	}

	result := &RefreshResult{
		UserID:    userID,
		Refreshed: []string{},
		Failed:    []models.SymbolFailure{},
	}
	updates := make([]models.PositionPrice, 0, len(positions))
	symbols := make(map[int]string, len(positions))

	for _, p := range positions {
		price, err := e.prices.LivePrice(ctx, p.Symbol)
		if err == nil && !price.IsPositive() {
			err = fmt.Errorf("%w: %s", models.ErrInvalidSymbol, p.Symbol)
		}
		if err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"user_id": userID,
				"symbol":  p.Symbol,
			}).Warn("skipping position, price fetch failed")
			result.Failed = append(result.Failed, models.SymbolFailure{Symbol: p.Symbol, Reason: err.Error()})
			continue
		}

		updates = append(updates, models.PositionPrice{
			PositionID: p.ID,
			Price:      price,
			PricedAt:   e.now(),
		})
		symbols[p.ID] = p.Symbol
	}

	if len(updates) > 0 {
		updated, err := e.store.SavePositionPrices(ctx, updates)
		if err != nil {
			return nil, classify(err)
		}
		written := make(map[int]bool, len(updated))
		for _, id := range updated {
			written[id] = true
		}
		for _, u := range updates {
			symbol := symbols[u.PositionID]
			if !written[u.PositionID] {
				e.log.WithFields(logrus.Fields{
					"user_id": userID,
					"symbol":  symbol,
				}).Warn("position closed during refresh, price not saved")
				result.Failed = append(result.Failed, models.SymbolFailure{Symbol: symbol, Reason: positionClosedReason})
				continue
			}
			result.Refreshed = append(result.Refreshed, symbol)
		}
	}

	e.log.WithFields(logrus.Fields{
		"user_id":   userID,
		"refreshed": len(result.Refreshed),
		"failed":    len(result.Failed),
	}).Info("positions refreshed")

	if e.events != nil && len(result.Refreshed) > 0 {
		if err := e.events.PublishPositionsRefreshed(ctx, userID, result.Refreshed, result.Failed); err != nil {
			e.log.WithError(err).WithField("user_id", userID).Warn("failed to publish refresh event")
		}
	}

	return result, nil
}
