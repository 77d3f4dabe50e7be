package handlers

import (
	"net/http"

	"github.com/benvon/wellness-sessions/internal/middleware"
	"github.com/gorilla/mux"
)

// UserHandler serves identity lookups for the authenticated caller
type UserHandler struct{}

// NewUserHandler creates a new user handler
func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// RegisterRoutes registers user routes
// The router should already have the /users prefix
func (h *UserHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.GetMe).Methods("GET")
}

// GetMe returns current user information
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}
	respondJSON(w, http.StatusOK, user)
}
