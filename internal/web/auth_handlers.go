package web

import (
	"net/http"
	"strings"

	"github.com/planline/planline/internal/auth"
	"github.com/planline/planline/internal/domain"
	apperrors "github.com/planline/planline/internal/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refresh_token"`
	User         domain.User `json:"user"`
}

// tokenPair issues the access/refresh pair every authentication path returns.
func (h *handlers) tokenPair(user *domain.User) (tokenResponse, error) {
	token, err := h.deps.Auth.IssueToken(user.ID)
	if err != nil {
		return tokenResponse{}, err
	}
	refresh, err := h.deps.Auth.IssueRefreshToken(user.ID)
	if err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{Token: token, RefreshToken: refresh, User: *user}, nil
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) error {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Email == "" || !strings.Contains(req.Email, "@") {
		return apperrors.ValidationError("INVALID_ACCOUNT", "name and a valid email are required")
	}
	if len(req.Password) < 8 {
		return apperrors.ValidationError("WEAK_PASSWORD", "password must be at least 8 characters")
	}

	hash, err := h.deps.Auth.HashPassword(req.Password)
	if err != nil {
		return err
	}
	user := &domain.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := h.deps.Users.Create(r.Context(), user); err != nil {
		return err
	}

	resp, err := h.tokenPair(user)
	if err != nil {
		return err
	}
	h.log.Info("user registered", zap.String("user_id", user.ID.Hex()))
	return writeJSON(w, http.StatusCreated, resp)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) error {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	user, err := h.deps.Users.FindByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		// A missing account and a wrong password look the same to the client.
		return apperrors.AuthenticationError("invalid credentials")
	}
	if !h.deps.Auth.CheckPassword(user.PasswordHash, req.Password) {
		return apperrors.AuthenticationError("invalid credentials")
	}

	resp, err := h.tokenPair(user)
	if err != nil {
		return err
	}

	h.deps.Recorder.RecordLog(domain.AuditLog{
		Entity:    domain.EntityUser,
		EntityID:  user.ID,
		Action:    domain.ActionLogin,
		Trigger:   domain.TriggerUser,
		TriggerID: &user.ID,
	})
	return writeJSON(w, http.StatusOK, resp)
}

// refreshToken exchanges a valid refresh token for a fresh pair. The refresh
// token travels in the body, never in the Authorization header.
func (h *handlers) refreshToken(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	userID, err := h.deps.Auth.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		return err
	}
	user, err := h.deps.Users.FindByID(r.Context(), userID)
	if err != nil {
		return apperrors.AuthenticationError("account no longer exists")
	}
	resp, err := h.tokenPair(user)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, resp)
}

// logout records the event for the audit trail. Tokens are stateless, so the
// client discards them; nothing is revoked server side.
func (h *handlers) logout(w http.ResponseWriter, r *http.Request) error {
	userID := mustUserID(r)
	h.deps.Recorder.RecordLog(domain.AuditLog{
		Entity:    domain.EntityUser,
		EntityID:  userID,
		Action:    domain.ActionLogout,
		Trigger:   domain.TriggerUser,
		TriggerID: &userID,
	})
	return writeJSON(w, http.StatusNoContent, nil)
}

func (h *handlers) currentUser(w http.ResponseWriter, r *http.Request) error {
	userID := mustUserID(r)
	user, err := h.deps.Users.FindByID(r.Context(), userID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, user)
}

func (h *handlers) updateCurrentUser(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return apperrors.ValidationError("INVALID_ACCOUNT", "name cannot be empty")
	}

	userID := mustUserID(r)
	if err := h.deps.Users.UpdateName(r.Context(), userID, req.Name); err != nil {
		return err
	}
	user, err := h.deps.Users.FindByID(r.Context(), userID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, user)
}

// mustUserID reads the authenticated user set by the auth middleware. Routes
// calling it are always mounted behind that middleware.
func mustUserID(r *http.Request) primitive.ObjectID {
	id, _ := auth.UserID(r.Context())
	return id
}
