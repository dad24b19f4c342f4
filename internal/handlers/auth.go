// Package handlers holds the out-of-core REST surface (spec §11): account
// creation, login, token refresh, and profile lookup. None of this is part
// of the Game Engine/Matchmaker core; it exists so the Session Router has a
// user_id to bind a websocket session to.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"chessmata/internal/auth"
	"chessmata/internal/middleware"
	"chessmata/internal/models"
	"chessmata/internal/store"

	"github.com/go-playground/validator/v10"
)

var loginPattern = regexp.MustCompile(models.LoginPattern)

type AuthHandler struct {
	store    *store.Store
	jwt      *auth.JWTService
	password *auth.PasswordService
	google   *auth.GoogleOAuthService
	validate *validator.Validate
	log      *slog.Logger
}

func NewAuthHandler(s *store.Store, jwt *auth.JWTService, password *auth.PasswordService, google *auth.GoogleOAuthService, log *slog.Logger) *AuthHandler {
	return &AuthHandler{store: s, jwt: jwt, password: password, google: google, validate: validator.New(), log: log}
}

type registerRequest struct {
	Login    string `json:"login" validate:"required,min=3,max=20"`
	Password string `json:"password" validate:"required,min=10,max=128"`
}

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type tokenPair struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         models.User `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !loginPattern.MatchString(req.Login) {
		writeError(w, http.StatusBadRequest, "login must be 3-20 characters of letters, digits, or underscore")
		return
	}
	if err := h.password.ValidatePasswordStrengthForLogin(req.Password, req.Login); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if _, err := h.store.GetUserByLogin(ctx, req.Login); err == nil {
		writeError(w, http.StatusConflict, "login already taken")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		h.log.Error("register: login lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	hash, err := h.password.HashPassword(req.Password)
	if err != nil {
		h.log.Error("register: password hash failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	id, err := h.store.NextID(ctx, store.KindUser)
	if err != nil {
		h.log.Error("register: id allocation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now()
	user := &models.User{
		ID:           id,
		Login:        req.Login,
		PasswordHash: hash,
		Rating:       models.DefaultRating,
		KFactor:      models.DefaultKFactor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.store.SaveUser(ctx, user); err != nil {
		h.log.Error("register: save failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.issueTokens(w, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "login and password are required")
		return
	}

	user, err := h.store.GetUserByLogin(r.Context(), req.Login)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := h.password.ComparePassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.issueTokens(w, user)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	claims, err := h.jwt.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	user, err := h.store.GetUser(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	h.issueTokens(w, user)
}

// Logout is a no-op beyond a 200: access tokens are short-lived (§jwt.go)
// and this surface carries no revocation list — the client simply discards
// its tokens.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) issueTokens(w http.ResponseWriter, user *models.User) {
	access, err := h.jwt.GenerateAccessToken(user.ID, user.Login)
	if err != nil {
		h.log.Error("token issuance failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	refresh, err := h.jwt.GenerateRefreshToken(user.ID)
	if err != nil {
		h.log.Error("token issuance failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, tokenPair{AccessToken: access, RefreshToken: refresh, User: *user})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
