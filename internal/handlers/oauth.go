package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"chessmata/internal/auth"
	"chessmata/internal/models"
	"chessmata/internal/store"
)

// oauthStates tracks outstanding state nonces for the Google login flow, an
// alternate credential path into the same Session Router binding (spec
// §11: kept as a supplementary surface, never exercised by the core Game
// Engine/Matchmaker scenarios).
type oauthStateStore struct {
	mu     sync.Mutex
	issued map[string]time.Time
}

var oauthStates = &oauthStateStore{issued: make(map[string]time.Time)}

const oauthStateTTL = 10 * time.Minute

func (s *oauthStateStore) issue() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked()
	var b [16]byte
	rand.Read(b[:])
	state := hex.EncodeToString(b[:])
	s.issued[state] = time.Now()
	return state
}

func (s *oauthStateStore) consume(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	issuedAt, ok := s.issued[state]
	if !ok {
		return false
	}
	delete(s.issued, state)
	return time.Since(issuedAt) < oauthStateTTL
}

func (s *oauthStateStore) reapLocked() {
	for state, issuedAt := range s.issued {
		if time.Since(issuedAt) > oauthStateTTL {
			delete(s.issued, state)
		}
	}
}

func (h *AuthHandler) GoogleOAuth(w http.ResponseWriter, r *http.Request) {
	state := oauthStates.issue()
	http.Redirect(w, r, h.google.GetAuthURL(state), http.StatusFound)
}

func (h *AuthHandler) GoogleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if !oauthStates.consume(state) {
		writeError(w, http.StatusBadRequest, "invalid or expired oauth state")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code")
		return
	}

	ctx := r.Context()
	token, err := h.google.ExchangeCode(ctx, code)
	if err != nil {
		writeError(w, http.StatusBadGateway, "oauth code exchange failed")
		return
	}
	info, err := h.google.GetUserInfo(ctx, token)
	if errors.Is(err, auth.ErrOAuthEmailUnverified) {
		writeError(w, http.StatusForbidden, "google account email must be verified")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "oauth userinfo fetch failed")
		return
	}

	user, err := h.findOrCreateGoogleUser(ctx, info.ID)
	if err != nil {
		h.log.Error("google oauth: user provisioning failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.issueTokens(w, user)
}

// findOrCreateGoogleUser maps a Google account id onto a synthetic login
// (Google's namespace doesn't fit the login charset in models.LoginPattern),
// creating the user on first sign-in with no password (OAuth-only account).
func (h *AuthHandler) findOrCreateGoogleUser(ctx context.Context, googleID string) (*models.User, error) {
	login := fmt.Sprintf("g_%s", googleID)
	if len(login) > 20 {
		login = login[:20]
	}

	user, err := h.store.GetUserByLogin(ctx, login)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	id, err := h.store.NextID(ctx, store.KindUser)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	user = &models.User{
		ID:        id,
		Login:     login,
		Rating:    models.DefaultRating,
		KFactor:   models.DefaultKFactor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
