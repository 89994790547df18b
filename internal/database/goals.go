package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

const goalColumns = `id, user_id, goal_type, target_amount, target_date, monthly_contribution, status, created_at`

func scanGoal(row rowScanner) (*models.Goal, error) {
	var g models.Goal
	err := row.Scan(
		&g.ID, &g.UserID, &g.GoalType, &g.TargetAmount, &g.TargetDate,
		&g.MonthlyContribution, &g.Status, &g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// CreateGoal inserts a goal; status defaults to Active
func (db *DB) CreateGoal(ctx context.Context, g *models.Goal) error {
	if g.Status == "" {
		g.Status = models.GoalStatusActive
	}
	query := `
		INSERT INTO goals (user_id, goal_type, target_amount, target_date, monthly_contribution, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := db.conn.QueryRowContext(ctx, query,
		g.UserID, g.GoalType, g.TargetAmount, g.TargetDate, g.MonthlyContribution, g.Status,
	).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create goal: %w", mapPQError(err))
	}
	return nil
}

// GetGoalsByUser lists a user's goals
func (db *DB) GetGoalsByUser(ctx context.Context, userID int) ([]*models.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals WHERE user_id = $1 ORDER BY target_date, id`
	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	goals := []*models.Goal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate goals: %w", err)
	}
	return goals, nil
}

// UpdateGoal overwrites the editable fields of a goal owned by g.UserID. A goal
// of another user is reported as not found.
func (db *DB) UpdateGoal(ctx context.Context, g *models.Goal) error {
	query := `
		UPDATE goals SET
			goal_type = $3, target_amount = $4, target_date = $5,
			monthly_contribution = $6, status = $7
		WHERE id = $1 AND user_id = $2
		RETURNING ` + goalColumns
	updated, err := scanGoal(db.conn.QueryRowContext(ctx, query,
		g.ID, g.UserID, g.GoalType, g.TargetAmount, g.TargetDate, g.MonthlyContribution, g.Status,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("goal", g.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update goal: %w", err)
	}
	*g = *updated
	return nil
}

// DeleteGoal removes a goal and its contributions
func (db *DB) DeleteGoal(ctx context.Context, id int) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM goals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return notFound("goal", id)
	}
	return nil
}

// GetGoalProgress sums the contributions made to a goal
func (db *DB) GetGoalProgress(ctx context.Context, goalID int) (*models.GoalProgress, error) {
	query := `
		SELECT g.id, COALESCE(SUM(gt.contribution), 0)
		FROM goals g
		LEFT JOIN goal_transactions gt ON gt.goal_id = g.id
		WHERE g.id = $1
		GROUP BY g.id
	`
	var p models.GoalProgress
	err := db.conn.QueryRowContext(ctx, query, goalID).Scan(&p.GoalID, &p.TotalPaid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("goal", goalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get goal progress: %w", err)
	}
	return &p, nil
}

// CreateGoalContribution records a payment towards a goal. The goal must belong
// to c.UserID, otherwise nothing is inserted and the goal is not found.
func (db *DB) CreateGoalContribution(ctx context.Context, c *models.GoalContribution) error {
	query := `
		INSERT INTO goal_transactions (user_id, goal_id, contribution)
		SELECT g.user_id, g.id, $3
		FROM goals g
		WHERE g.id = $2 AND g.user_id = $1
		RETURNING id, executed_at
	`
	err := db.conn.QueryRowContext(ctx, query, c.UserID, c.GoalID, c.Amount).Scan(&c.ID, &c.ExecutedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("goal", c.GoalID)
	}
	if err != nil {
		return fmt.Errorf("failed to create goal contribution: %w", mapPQError(err))
	}
	return nil
}

// GetGoalContributionsByUser lists a user's goal contributions, newest first
func (db *DB) GetGoalContributionsByUser(ctx context.Context, userID int) ([]*models.GoalContribution, error) {
	query := `
		SELECT id, user_id, goal_id, contribution, executed_at
		FROM goal_transactions
		WHERE user_id = $1
		ORDER BY executed_at DESC, id DESC
	`
	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query goal contributions: %w", err)
	}
	defer rows.Close()

	contributions := []*models.GoalContribution{}
	for rows.Next() {
		var c models.GoalContribution
		if err := rows.Scan(&c.ID, &c.UserID, &c.GoalID, &c.Amount, &c.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan goal contribution: %w", err)
		}
		contributions = append(contributions, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate goal contributions: %w", err)
	}
	return contributions, nil
}
