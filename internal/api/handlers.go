package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
	"github.com/trogers1052/portfolio-ledger/internal/tasks"
)

// Ledger applies trades and revalues positions
type Ledger interface {
	ApplyTrade(ctx context.Context, req models.TradeRequest) (*models.Trade, *models.Position, error)
	RefreshPositions(ctx context.Context, userID int) (*ledger.RefreshResult, error)
}

// Store is the data access the handlers need outside the ledger rules
type Store interface {
	Ping(ctx context.Context) error

	GetPositionsByUser(ctx context.Context, userID int) ([]*models.Position, error)
	DeletePosition(ctx context.Context, id int) (*models.Position, error)
	GetTradesByUser(ctx context.Context, userID int) ([]*models.Trade, error)
	DeleteTrade(ctx context.Context, id int) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUsers(ctx context.Context) ([]*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	DeleteUser(ctx context.Context, id int) error

	CreateGoal(ctx context.Context, g *models.Goal) error
	GetGoalsByUser(ctx context.Context, userID int) ([]*models.Goal, error)
	UpdateGoal(ctx context.Context, g *models.Goal) error
	DeleteGoal(ctx context.Context, id int) error
	GetGoalProgress(ctx context.Context, goalID int) (*models.GoalProgress, error)
	CreateGoalContribution(ctx context.Context, c *models.GoalContribution) error
	GetGoalContributionsByUser(ctx context.Context, userID int) ([]*models.GoalContribution, error)
}

// EventPublisher announces deletions that bypass the ledger
type EventPublisher interface {
	PublishInvestmentDeleted(ctx context.Context, position *models.Position) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	ledger   Ledger
	store    Store
	queue    tasks.Queue
	prices   ledger.PriceSource
	events   EventPublisher
	currency string
	log      logrus.FieldLogger
}

// NewHandler creates a new Handler
func NewHandler(l Ledger, store Store, queue tasks.Queue, prices ledger.PriceSource, log logrus.FieldLogger) *Handler {
	return &Handler{
		ledger:   l,
		store:    store,
		queue:    queue,
		prices:   prices,
		currency: "INR",
		log:      log,
	}
}

// WithEvents makes the handler publish investment deletions to pub
func (h *Handler) WithEvents(pub EventPublisher) *Handler {
	h.events = pub
	return h
}

// WithCurrency sets the currency used to format portfolio summaries
func (h *Handler) WithCurrency(code string) *Handler {
	h.currency = code
	return h
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.log.WithError(err).Warn("health check failed")
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondMessage(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"message": msg})
}

func respondBadRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// respondError maps the error taxonomy onto HTTP status codes
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidTrade),
		errors.Is(err, models.ErrPriceUnavailable),
		errors.Is(err, models.ErrInvalidSymbol),
		errors.Is(err, models.ErrInsufficientUnits),
		errors.Is(err, models.ErrDivisionByZero):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound), errors.Is(err, tasks.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateTrade), errors.Is(err, models.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func pathID(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
