package middleware

import (
	"context"
	"net/http"
	"strings"

	"chessmata/internal/auth"
	"chessmata/internal/models"
	"chessmata/internal/store"
)

type contextKey string

const (
	UserContextKey contextKey = "user"
)

// AuthMiddleware validates the JWT access token on the out-of-core REST
// surface (registration/login/profile — spec §11) and loads the
// corresponding Store user into the request context.
type AuthMiddleware struct {
	jwtService *auth.JWTService
	store      *store.Store
}

func NewAuthMiddleware(jwtService *auth.JWTService, s *store.Store) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService, store: s}
}

func (m *AuthMiddleware) authenticate(r *http.Request) (*models.User, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, auth.ErrInvalidToken
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, auth.ErrInvalidToken
	}

	claims, err := m.jwtService.ValidateAccessToken(parts[1])
	if err != nil {
		return nil, err
	}
	return m.store.GetUser(r.Context(), claims.UserID)
}

// RequireAuth validates the JWT and loads the user into context, or responds 401.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.authenticate(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth loads the user into context if a valid token is present, but
// never rejects the request.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, err := m.authenticate(r); err == nil {
			r = r.WithContext(context.WithValue(r.Context(), UserContextKey, user))
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserFromContext retrieves the authenticated user from the request context.
func GetUserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok
}
