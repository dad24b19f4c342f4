package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter applies a fixed-window counter per key, backed by Redis so the
// limit is enforced across every process behind the Session Router rather
// than per-process (spec §10: rate limiting is a cross-process concern since
// the gateway fans out over multiple server instances).
type RateLimiter struct {
	rdb *redis.Client
}

// RateLimitConfig defines rate limit parameters
type RateLimitConfig struct {
	MaxRequests int           // Maximum requests allowed in the window
	Window      time.Duration // Time window for rate limiting
}

// Common rate limit configurations
var (
	// Account creation: 5 accounts per hour per IP
	AccountCreationLimit = RateLimitConfig{MaxRequests: 5, Window: time.Hour}

	// Login attempts: 10 attempts per 15 minutes per IP
	LoginAttemptLimit = RateLimitConfig{MaxRequests: 10, Window: 15 * time.Minute}

	// Token refresh: 30 per minute per IP
	TokenRefreshLimit = RateLimitConfig{MaxRequests: 30, Window: time.Minute}

	// Game request (matchmaking queue join/create_game): 10 per minute per user
	GameCreationLimit = RateLimitConfig{MaxRequests: 10, Window: time.Minute}

	// WebSocket upgrade: 20 per minute per IP
	WebSocketUpgradeLimit = RateLimitConfig{MaxRequests: 20, Window: time.Minute}

	// make_move / draw-offer / resign events: 60 per minute per session,
	// generous enough to never bind a legitimately fast-playing client but
	// tight enough to blunt a scripted flood of bogus move events.
	GameActionLimit = RateLimitConfig{MaxRequests: 60, Window: time.Minute}
)

// NewRateLimiter wraps an existing Redis client. The client's lifecycle
// (connect/close) is owned by the caller, same as every other Store-adjacent
// component in this service.
func NewRateLimiter(rdb *redis.Client) *RateLimiter {
	return &RateLimiter{rdb: rdb}
}

// Allow checks if a request should be allowed based on the rate limit.
// Returns (allowed, remaining, resetTime). Uses INCR+EXPIRE on a key scoped
// to the current window boundary, so concurrent requests from multiple
// processes all see the same counter.
func (rl *RateLimiter) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int, time.Time) {
	now := time.Now()
	windowID := now.Unix() / int64(config.Window.Seconds())
	redisKey := "ratelimit:" + key + ":" + strconv.FormatInt(windowID, 10)
	resetTime := time.Unix((windowID+1)*int64(config.Window.Seconds()), 0)

	count, err := rl.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		// Redis unavailable: fail open rather than taking the whole service
		// down over a non-critical defense-in-depth layer.
		return true, config.MaxRequests, resetTime
	}
	if count == 1 {
		rl.rdb.Expire(ctx, redisKey, config.Window)
	}

	if int(count) > config.MaxRequests {
		return false, 0, resetTime
	}
	return true, config.MaxRequests - int(count), resetTime
}

// GetClientIP extracts the real client IP from the request
func GetClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		if ip, _, err := net.SplitHostPort(xff); err == nil {
			return ip
		}
		if net.ParseIP(xff) != nil {
			return xff
		}
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				firstIP := xff[:i]
				if net.ParseIP(firstIP) != nil {
					return firstIP
				}
				break
			}
		}
	}

	xri := r.Header.Get("X-Real-IP")
	if xri != "" && net.ParseIP(xri) != nil {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// RateLimitMiddleware creates a middleware that applies rate limiting
func (rl *RateLimiter) RateLimitMiddleware(config RateLimitConfig, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			allowed, remaining, resetTime := rl.Allow(r.Context(), key, config)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", resetTime.Format(time.RFC3339))

			if !allowed {
				retryAfter := int(time.Until(resetTime).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error":      "Rate limit exceeded",
					"retryAfter": retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPRateLimitMiddleware creates a middleware that rate limits by IP
func (rl *RateLimiter) IPRateLimitMiddleware(config RateLimitConfig) func(http.Handler) http.Handler {
	return rl.RateLimitMiddleware(config, func(r *http.Request) string {
		return GetClientIP(r)
	})
}

// RateLimitHandler wraps a handler function with rate limiting
func (rl *RateLimiter) RateLimitHandler(config RateLimitConfig, keyFunc func(*http.Request) string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := keyFunc(r)
		allowed, remaining, resetTime := rl.Allow(r.Context(), key, config)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", resetTime.Format(time.RFC3339))

		if !allowed {
			retryAfter := int(time.Until(resetTime).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":      "Rate limit exceeded",
				"retryAfter": retryAfter,
			})
			return
		}

		handler(w, r)
	}
}
