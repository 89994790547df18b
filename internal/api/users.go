package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// CreateUser handles POST /users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}

	user := &models.User{Name: strings.TrimSpace(req.Name), Email: strings.TrimSpace(req.Email)}
	if user.Name == "" || user.Email == "" {
		respondBadRequest(w, "name and email are required")
		return
	}

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

// GetUsers handles GET /users
func (h *Handler) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.GetUsers(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

// GetUser handles GET /users/{user_id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "user_id")
	if !ok {
		respondBadRequest(w, "invalid user id")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// DeleteUser handles DELETE /users/{user_id}. Positions, trades and goals go with it.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "user_id")
	if !ok {
		respondBadRequest(w, "invalid user id")
		return
	}

	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "User deleted")
}

type goalRequest struct {
	UserID              int             `json:"user_id"`
	GoalType            string          `json:"goal_type"`
	TargetAmount        decimal.Decimal `json:"target_amount"`
	TargetDate          string          `json:"target_date"`
	MonthlyContribution decimal.Decimal `json:"monthly_contribution"`
	Status              string          `json:"status"`
}

func (req goalRequest) toGoal() (*models.Goal, string) {
	if strings.TrimSpace(req.GoalType) == "" {
		return nil, "goal_type is required"
	}
	if !req.TargetAmount.IsPositive() {
		return nil, "target_amount must be positive"
	}
	if req.MonthlyContribution.IsNegative() {
		return nil, "monthly_contribution must not be negative"
	}
	date, err := parseDate(req.TargetDate)
	if err != nil {
		return nil, "target_date must be YYYY-MM-DD"
	}
	return &models.Goal{
		UserID:              req.UserID,
		GoalType:            strings.TrimSpace(req.GoalType),
		TargetAmount:        req.TargetAmount,
		TargetDate:          date,
		MonthlyContribution: req.MonthlyContribution,
		Status:              strings.TrimSpace(req.Status),
	}, ""
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// CreateGoal handles POST /goals
func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := decodeBody(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}
	if req.UserID <= 0 {
		respondBadRequest(w, "user_id is required")
		return
	}
	goal, msg := req.toGoal()
	if goal == nil {
		respondBadRequest(w, msg)
		return
	}

	if err := h.store.CreateGoal(r.Context(), goal); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, goal)
}

// GetGoals handles GET /goals/{user_id}
func (h *Handler) GetGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "user_id")
	if !ok {
		respondBadRequest(w, "invalid user id")
		return
	}

	goals, err := h.store.GetGoalsByUser(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, goals)
}

// UpdateGoal handles PUT /goals/{goal_id}. Only the owner named by user_id can
// change a goal.
func (h *Handler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "goal_id")
	if !ok {
		respondBadRequest(w, "invalid goal id")
		return
	}

	var req goalRequest
	if err := decodeBody(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}
	if req.UserID <= 0 {
		respondBadRequest(w, "user_id is required")
		return
	}
	goal, msg := req.toGoal()
	if goal == nil {
		respondBadRequest(w, msg)
		return
	}
	goal.ID = id
	if goal.Status == "" {
		goal.Status = models.GoalStatusActive
	}

	if err := h.store.UpdateGoal(r.Context(), goal); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, goal)
}

// DeleteGoal handles DELETE /goals/{goal_id}
func (h *Handler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "goal_id")
	if !ok {
		respondBadRequest(w, "invalid goal id")
		return
	}

	if err := h.store.DeleteGoal(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Goal deleted")
}

// GetGoalProgress handles GET /goals/progress/{goal_id}
func (h *Handler) GetGoalProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "goal_id")
	if !ok {
		respondBadRequest(w, "invalid goal id")
		return
	}

	progress, err := h.store.GetGoalProgress(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

// CreateGoalContribution handles POST /goal-transactions
func (h *Handler) CreateGoalContribution(w http.ResponseWriter, r *http.Request) {
	var c models.GoalContribution
	if err := decodeBody(r, &c); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}
	if c.UserID <= 0 || c.GoalID <= 0 {
		respondBadRequest(w, "user_id and goal_id are required")
		return
	}
	if !c.Amount.IsPositive() {
		respondBadRequest(w, "contribution must be positive")
		return
	}

	if err := h.store.CreateGoalContribution(r.Context(), &c); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// GetGoalContributions handles GET /goal-transactions/{user_id}
func (h *Handler) GetGoalContributions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "user_id")
	if !ok {
		respondBadRequest(w, "invalid user id")
		return
	}

	contributions, err := h.store.GetGoalContributionsByUser(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, contributions)
}
