package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GoalStatusActive is the default status of a new goal
const GoalStatusActive = "Active"

// Goal represents a savings target
type Goal struct {
	ID                  int             `json:"id"`
	UserID              int             `json:"user_id"`
	GoalType            string          `json:"goal_type"`
	TargetAmount        decimal.Decimal `json:"target_amount"`
	TargetDate          time.Time       `json:"target_date"`
	MonthlyContribution decimal.Decimal `json:"monthly_contribution"`
	Status              string          `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
}

// GoalContribution is a payment made towards a goal
type GoalContribution struct {
	ID         int             `json:"id"`
	UserID     int             `json:"user_id"`
	GoalID     int             `json:"goal_id"`
	Amount     decimal.Decimal `json:"contribution"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// GoalProgress reports how much has been paid towards a goal
type GoalProgress struct {
	GoalID    int             `json:"goal_id"`
	TotalPaid decimal.Decimal `json:"total_paid"`
}
