package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/benvon/wellness-sessions/internal/database"
	"github.com/benvon/wellness-sessions/internal/middleware"
	"github.com/benvon/wellness-sessions/internal/models"
	"github.com/benvon/wellness-sessions/internal/validation"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SessionHandler serves the session endpoints
type SessionHandler struct {
	repo   database.SessionRepositoryInterface
	logger *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(repo database.SessionRepositoryInterface, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{repo: repo, logger: logger}
}

// RegisterPublicRoutes registers routes that need no authentication
// The router should already have the /api/v1 prefix
func (h *SessionHandler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/sessions", h.ListPublished).Methods("GET")
}

// RegisterRoutes registers the caller's session routes
// The router should already have the /my-sessions prefix
func (h *SessionHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListMine).Methods("GET")
	r.HandleFunc("/save-draft", h.SaveDraft).Methods("POST")
	r.HandleFunc("/publish", h.Publish).Methods("POST")
	r.HandleFunc("/{id}", h.GetMine).Methods("GET")
}

// sessionFields are the editable fields shared by save-draft and publish.
// A nil field leaves the stored value untouched.
type sessionFields struct {
	Title       *string   `json:"title,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	JSONFileURL *string   `json:"json_file_url,omitempty"`
}

// SaveDraftRequest creates a draft, or updates one when ID is set. Status and
// User are accepted for compatibility and ignored: the server always stores a
// draft owned by the caller.
type SaveDraftRequest struct {
	ID *string `json:"id,omitempty" validate:"omitempty,uuid"`
	sessionFields
	Status *string `json:"status,omitempty"`
	User   *string `json:"user,omitempty"`
}

// PublishRequest publishes one of the caller's sessions, applying any provided fields first
type PublishRequest struct {
	ID string `json:"id" validate:"required,uuid"`
	sessionFields
}

// apply validates the provided fields and copies them onto s
func (f sessionFields) apply(s *models.Session) error {
	if f.Title != nil {
		title := validation.SanitizeText(*f.Title)
		if err := validation.ValidateTitle(title); err != nil {
			return err
		}
		s.Title = title
	}
	if f.Tags != nil {
		tags, err := validation.NormalizeTags(*f.Tags)
		if err != nil {
			return err
		}
		s.Tags = tags
	}
	if f.JSONFileURL != nil {
		ref := validation.SanitizeText(*f.JSONFileURL)
		if err := validation.ValidateFileURL(ref); err != nil {
			return err
		}
		s.JSONFileURL = ref
	}
	return nil
}

// ListPublished returns every published session
func (h *SessionHandler) ListPublished(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.repo.ListPublished(r.Context())
	if err != nil {
		h.logger.Error("failed_to_list_published_sessions", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list sessions")
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}

// ListMine returns the caller's drafts and published sessions
func (h *SessionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	sessions, err := h.repo.ListByUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed_to_list_user_sessions",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list sessions")
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}

// GetMine returns one of the caller's sessions
func (h *SessionHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid session ID")
		return
	}

	session, ok := h.loadOwned(w, r, id, user.ID)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// SaveDraft creates or partially updates a draft owned by the caller
func (h *SessionHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var req SaveDraftRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateRequest(w, req) {
		return
	}

	ctx := r.Context()
	status := http.StatusOK
	var session *models.Session
	if req.ID != nil {
		var ok bool
		session, ok = h.loadOwned(w, r, uuid.MustParse(*req.ID), user.ID)
		if !ok {
			return
		}
	} else {
		session = &models.Session{ID: uuid.New(), UserID: user.ID, Tags: []string{}}
		status = http.StatusCreated
	}

	if err := req.apply(session); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	session.UserID = user.ID
	session.Status = models.SessionStatusDraft

	var err error
	if status == http.StatusCreated {
		err = h.repo.Create(ctx, session)
	} else {
		err = h.repo.Update(ctx, session)
	}
	if errors.Is(err, database.ErrSessionNotFound) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Session not found")
		return
	}
	if err != nil {
		h.logger.Error("failed_to_save_draft",
			zap.String("user_id", user.ID.String()),
			zap.String("session_id", session.ID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to save draft")
		return
	}

	h.logger.Debug("draft_saved",
		zap.String("user_id", user.ID.String()),
		zap.String("session_id", session.ID.String()),
		zap.Bool("created", status == http.StatusCreated),
	)
	respondJSON(w, status, session)
}

// Publish marks one of the caller's sessions as published
func (h *SessionHandler) Publish(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var req PublishRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateRequest(w, req) {
		return
	}

	session, ok := h.loadOwned(w, r, uuid.MustParse(req.ID), user.ID)
	if !ok {
		return
	}
	if err := req.apply(session); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := validation.ValidatePublishable(session); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	session.Status = models.SessionStatusPublished

	err := h.repo.Update(r.Context(), session)
	if errors.Is(err, database.ErrSessionNotFound) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Session not found")
		return
	}
	if err != nil {
		h.logger.Error("failed_to_publish_session",
			zap.String("session_id", session.ID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to publish session")
		return
	}

	h.logger.Info("session_published",
		zap.String("user_id", user.ID.String()),
		zap.String("session_id", session.ID.String()),
	)
	respondJSON(w, http.StatusOK, session)
}

// loadOwned fetches a session of userID, writing 404/500 itself on failure
func (h *SessionHandler) loadOwned(w http.ResponseWriter, r *http.Request, id, userID uuid.UUID) (*models.Session, bool) {
	session, err := h.repo.GetByIDForUser(r.Context(), id, userID)
	if errors.Is(err, database.ErrSessionNotFound) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Session not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed_to_get_session",
			zap.String("session_id", id.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to get session")
		return nil, false
	}
	return session, true
}

// validateRequest runs struct validation, writing a 400 on the first failure
func validateRequest(w http.ResponseWriter, req any) bool {
	err := validation.Validate.Struct(req)
	if err == nil {
		return true
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fe := validationErrors[0]
		respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Validation failed: %s is %s", fe.Field(), fe.Tag()))
		return false
	}
	respondJSONError(w, http.StatusBadRequest, "Bad Request", "Validation failed")
	return false
}
