package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
	"github.com/trogers1052/portfolio-ledger/internal/tasks"
)

// CreateTransaction handles POST /transactions
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req models.TradeRequest
	if err := decodeBody(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}
	if req.UserID <= 0 {
		respondBadRequest(w, "user_id is required")
		return
	}

	trade, position, err := h.ledger.ApplyTrade(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"transaction": trade,
		"investment":  position,
	})
}

// GetTransactions handles GET /transactions/{user_id}
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "user_id")
	if !ok {
		respondBadRequest(w, "invalid user id")
		return
	}

	trades, err := h.store.GetTradesByUser(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, trades)
}

// DeleteTransaction handles DELETE /transactions/{id}. The position the trade
// was applied to is left as it is.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondBadRequest(w, "invalid transaction id")
		return
	}

	if err := h.store.DeleteTrade(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Transaction deleted")
}

// GetInvestments handles GET /investments/{user_id}
func (h *Handler) GetInvestments(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "user_id")
	if !ok {
		respondBadRequest(w, "invalid user id")
		return
	}

	positions, err := h.store.GetPositionsByUser(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, positions)
}

// GetPortfolioSummary handles GET /investments/{user_id}/summary
func (h *Handler) GetPortfolioSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "user_id")
	if !ok {
		respondBadRequest(w, "invalid user id")
		return
	}

	positions, err := h.store.GetPositionsByUser(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ledger.Summarize(userID, h.currency, positions))
}

// DeleteInvestment handles DELETE /investments/{id}. It removes the row
// outright, without any ledger rule.
func (h *Handler) DeleteInvestment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondBadRequest(w, "invalid investment id")
		return
	}

	position, err := h.store.DeletePosition(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if h.events != nil {
		if err := h.events.PublishInvestmentDeleted(r.Context(), position); err != nil {
			h.log.WithError(err).WithField("investment_id", id).Warn("failed to publish investment deleted event")
		}
	}

	respondMessage(w, http.StatusOK, "Investment deleted")
}

// RefreshInvestments handles GET /investments/refresh/{user_id} and revalues
// the user's positions before responding
func (h *Handler) RefreshInvestments(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "user_id")
	if !ok {
		respondBadRequest(w, "invalid user id")
		return
	}

	result, err := h.ledger.RefreshPositions(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message":         "Investments refreshed",
		"updated_symbols": result.Refreshed,
		"failed":          result.Failed,
	})
}

// EnqueueRefresh handles POST /investments/refresh/{user_id}
func (h *Handler) EnqueueRefresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "user_id")
	if !ok {
		respondBadRequest(w, "invalid user id")
		return
	}

	task := tasks.NewRefreshTask(userID)
	if err := h.queue.Enqueue(r.Context(), task); err != nil {
		h.respondError(w, r, err)
		return
	}

	h.log.WithField("user_id", userID).WithField("task_id", task.ID).Info("refresh task queued")
	respondJSON(w, http.StatusAccepted, map[string]string{
		"message": "Refresh started",
		"task_id": task.ID,
	})
}

// GetRefreshTask handles GET /refresh-tasks/{task_id}
func (h *Handler) GetRefreshTask(w http.ResponseWriter, r *http.Request) {
	status, err := h.queue.GetStatus(r.Context(), mux.Vars(r)["task_id"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// GetMarketPrice handles GET /market-price/{symbol}
func (h *Handler) GetMarketPrice(w http.ResponseWriter, r *http.Request) {
	symbol := ledger.NormalizeSymbol(mux.Vars(r)["symbol"])
	if symbol == "" || strings.ContainsAny(symbol, " /") {
		respondBadRequest(w, "invalid symbol")
		return
	}

	price, err := h.prices.LivePrice(r.Context(), symbol)
	if err != nil {
		h.log.WithError(err).WithField("symbol", symbol).Warn("market price lookup failed")
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": models.ErrPriceUnavailable.Error()})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"symbol": symbol,
		"price":  price,
	})
}
