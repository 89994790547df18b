package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

const positionColumns = `
	id, user_id, asset_type, symbol, units, avg_buy_price, cost_basis,
	current_value, last_price, last_price_at, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	var lastPriceAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.UserID, &p.AssetType, &p.Symbol, &p.Units, &p.AvgBuyPrice, &p.CostBasis,
		&p.CurrentValue, &p.LastPrice, &lastPriceAt, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastPriceAt.Valid {
		t := lastPriceAt.Time
		p.LastPriceAt = &t
	}
	return &p, nil
}

func scanPositions(rows *sql.Rows, err error) ([]*models.Position, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query investments: %w", err)
	}
	defer rows.Close()

	positions := []*models.Position{}
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate investments: %w", err)
	}
	return positions, nil
}

// WithTradeLock runs fn in a transaction holding an advisory lock on the
// (user, symbol) pair, so concurrent trades on the pair apply one at a time even
// before the first row exists.
func (db *DB) WithTradeLock(ctx context.Context, userID int, symbol string, fn func(tx ledger.TradeTx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lockKey := fmt.Sprintf("%d:%s", userID, symbol)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return fmt.Errorf("failed to acquire trade lock: %w", err)
	}

	if err := fn(&tradeTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type tradeTx struct {
	tx *sql.Tx
}

func (t *tradeTx) PositionForUpdate(ctx context.Context, userID int, symbol string) (*models.Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM investments
		WHERE user_id = $1 AND symbol = $2
		FOR UPDATE
	`
	p, err := scanPosition(t.tx.QueryRowContext(ctx, query, userID, symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock investment: %w", err)
	}
	return p, nil
}

func (t *tradeTx) TradeExistsByRequestID(ctx context.Context, userID int, requestID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE user_id = $1 AND request_id = $2)`,
		userID, requestID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check request id: %w", err)
	}
	return exists, nil
}

func (t *tradeTx) InsertTrade(ctx context.Context, trade *models.Trade) error {
	query := `
		INSERT INTO transactions (user_id, symbol, type, quantity, price, fees, request_id, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	requestID := sql.NullString{String: trade.RequestID, Valid: trade.RequestID != ""}
	err := t.tx.QueryRowContext(ctx, query,
		trade.UserID, trade.Symbol, trade.Type, trade.Quantity, trade.Price, trade.Fees,
		requestID, trade.ExecutedAt,
	).Scan(&trade.ID)
	if err != nil {
		err = mapPQError(err)
		if errors.Is(err, models.ErrAlreadyExists) {
			return fmt.Errorf("%w: %s", models.ErrDuplicateTrade, trade.RequestID)
		}
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("user %w: %d", models.ErrNotFound, trade.UserID)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (t *tradeTx) SavePosition(ctx context.Context, p *models.Position) error {
	if p.ID == 0 {
		query := `
			INSERT INTO investments (
				user_id, asset_type, symbol, units, avg_buy_price, cost_basis,
				current_value, last_price, last_price_at, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id, created_at, updated_at
		`
		err := t.tx.QueryRowContext(ctx, query,
			p.UserID, p.AssetType, p.Symbol, p.Units, p.AvgBuyPrice, p.CostBasis,
			p.CurrentValue, p.LastPrice, p.LastPriceAt, p.Status,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert investment: %w", mapPQError(err))
		}
		return nil
	}

	query := `
		UPDATE investments SET
			units = $2, avg_buy_price = $3, cost_basis = $4, current_value = $5,
			last_price = $6, last_price_at = $7, status = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	err := t.tx.QueryRowContext(ctx, query,
		p.ID, p.Units, p.AvgBuyPrice, p.CostBasis, p.CurrentValue,
		p.LastPrice, p.LastPriceAt, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("investment", p.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update investment: %w", err)
	}
	return nil
}

// GetActivePositionsByUser returns the user's ACTIVE positions ordered by symbol
func (db *DB) GetActivePositionsByUser(ctx context.Context, userID int) ([]*models.Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM investments
		WHERE user_id = $1 AND status = 'ACTIVE'
		ORDER BY symbol
	`
	return scanPositions(db.conn.QueryContext(ctx, query, userID))
}

// GetPositionsByUser returns every position of the user, INACTIVE included
func (db *DB) GetPositionsByUser(ctx context.Context, userID int) ([]*models.Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM investments
		WHERE user_id = $1
		ORDER BY status, symbol
	`
	return scanPositions(db.conn.QueryContext(ctx, query, userID))
}

// GetPositionByID retrieves a position by ID
func (db *DB) GetPositionByID(ctx context.Context, id int) (*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM investments WHERE id = $1`
	p, err := scanPosition(db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("investment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get investment: %w", err)
	}
	return p, nil
}

// DeletePosition removes a position row without touching its trades and
// returns what was deleted
func (db *DB) DeletePosition(ctx context.Context, id int) (*models.Position, error) {
	query := `DELETE FROM investments WHERE id = $1 RETURNING ` + positionColumns
	p, err := scanPosition(db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("investment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete investment: %w", err)
	}
	return p, nil
}

// SavePositionPrices writes a batch of valuations in one transaction. Each row
// is a single UPDATE so last_price, last_price_at and current_value never
// diverge. Rows that went INACTIVE or were deleted since they were read are
// left alone and missing from the returned IDs.
func (db *DB) SavePositionPrices(ctx context.Context, prices []models.PositionPrice) ([]int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE investments SET
			last_price = $2::numeric,
			last_price_at = $3,
			current_value = units * $2::numeric,
			updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	updated := make([]int, 0, len(prices))
	for _, pp := range prices {
		res, err := stmt.ExecContext(ctx, pp.PositionID, pp.Price, pp.PricedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to update price for investment %d: %w", pp.PositionID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read rows affected for investment %d: %w", pp.PositionID, err)
		}
		if n > 0 {
			updated = append(updated, pp.PositionID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return updated, nil
}
