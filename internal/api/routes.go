package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// Ledger
	r.HandleFunc("/transactions", handler.CreateTransaction).Methods("POST")
	r.HandleFunc("/transactions/{user_id:[0-9]+}", handler.GetTransactions).Methods("GET")
	r.HandleFunc("/transactions/{id:[0-9]+}", handler.DeleteTransaction).Methods("DELETE")
	r.HandleFunc("/investments/refresh/{user_id:[0-9]+}", handler.RefreshInvestments).Methods("GET")
	r.HandleFunc("/investments/refresh/{user_id:[0-9]+}", handler.EnqueueRefresh).Methods("POST")
	r.HandleFunc("/investments/{user_id:[0-9]+}", handler.GetInvestments).Methods("GET")
	r.HandleFunc("/investments/{user_id:[0-9]+}/summary", handler.GetPortfolioSummary).Methods("GET")
	r.HandleFunc("/investments/{id:[0-9]+}", handler.DeleteInvestment).Methods("DELETE")
	r.HandleFunc("/refresh-tasks/{task_id}", handler.GetRefreshTask).Methods("GET")
	r.HandleFunc("/market-price/{symbol}", handler.GetMarketPrice).Methods("GET")

	// Users and goals
	r.HandleFunc("/users", handler.CreateUser).Methods("POST")
	r.HandleFunc("/users", handler.GetUsers).Methods("GET")
	r.HandleFunc("/users/{user_id:[0-9]+}", handler.GetUser).Methods("GET")
	r.HandleFunc("/users/{user_id:[0-9]+}", handler.DeleteUser).Methods("DELETE")
	r.HandleFunc("/goals", handler.CreateGoal).Methods("POST")
	r.HandleFunc("/goals/progress/{goal_id:[0-9]+}", handler.GetGoalProgress).Methods("GET")
	r.HandleFunc("/goals/{user_id:[0-9]+}", handler.GetGoals).Methods("GET")
	r.HandleFunc("/goals/{goal_id:[0-9]+}", handler.UpdateGoal).Methods("PUT")
	r.HandleFunc("/goals/{goal_id:[0-9]+}", handler.DeleteGoal).Methods("DELETE")
	r.HandleFunc("/goal-transactions", handler.CreateGoalContribution).Methods("POST")
	r.HandleFunc("/goal-transactions/{user_id:[0-9]+}", handler.GetGoalContributions).Methods("GET")

	return r
}
