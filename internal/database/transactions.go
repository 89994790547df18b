package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// GetTradesByUser returns a user's trades, newest first
func (db *DB) GetTradesByUser(ctx context.Context, userID int) ([]*models.Trade, error) {
	query := `
		SELECT id, user_id, symbol, type, quantity, price, fees, request_id, executed_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY executed_at DESC, id DESC
	`
	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	trades := []*models.Trade{}
	for rows.Next() {
		var t models.Trade
		var requestID sql.NullString
		err := rows.Scan(
			&t.ID, &t.UserID, &t.Symbol, &t.Type, &t.Quantity, &t.Price, &t.Fees,
			&requestID, &t.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if requestID.Valid {
			t.RequestID = requestID.String
		}
		trades = append(trades, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return trades, nil
}

// DeleteTrade removes a trade record. The position it contributed to is not
// recomputed.
func (db *DB) DeleteTrade(ctx context.Context, id int) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return notFound("transaction", id)
	}
	return nil
}
