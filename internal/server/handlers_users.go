package server

import (
	"net/http"
	"strings"

	"github.com/ashita-ai/manabi/internal/auth"
	"github.com/ashita-ai/manabi/internal/model"
)

// HandleCreateUser handles POST /v1/users (admin-only).
func (h *Handlers) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	if err := model.ValidateUserID(req.UserID); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if !model.ValidRole(req.Role) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"role must be one of: admin, instructor, learner")
		return
	}
	if req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "api_key is required")
		return
	}

	hash, err := auth.HashAPIKey(req.APIKey)
	if err != nil {
		h.writeInternalError(w, r, "failed to hash api key", err)
		return
	}

	user, err := h.db.CreateUser(r.Context(), model.User{
		UserID:     req.UserID,
		Name:       req.Name,
		Role:       req.Role,
		APIKeyHash: &hash,
	})
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict,
				"user already exists: "+req.UserID)
			return
		}
		h.writeInternalError(w, r, "failed to create user", err)
		return
	}

	h.logger.Info("user created", "user_id", user.UserID, "role", user.Role)
	writeJSON(w, r, http.StatusCreated, user)
}

// HandleListUsers handles GET /v1/users (admin-only).
func (h *Handlers) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.ListUsers(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to list users", err)
		return
	}
	writeJSON(w, r, http.StatusOK, users)
}

// HandleGetUser handles GET /v1/users/{user_id} (admin-only).
func (h *Handlers) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	user, err := h.db.GetUserByUserID(r.Context(), userID)
	if err != nil {
		if isNotFound(err) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "user not found: "+userID)
			return
		}
		h.writeInternalError(w, r, "failed to load user", err)
		return
	}
	writeJSON(w, r, http.StatusOK, user)
}
