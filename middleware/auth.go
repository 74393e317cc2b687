/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L4
Logic:       Caller identity middleware extracting a pre-established
             caller ID from the configured header and attaching it
             to request context for every downstream component
             (budget resolution, query tagging, event ActorID).
Context:     Identity establishment itself is out of scope (spec.md
             §1 Non-goals) — some upstream system (a proxy, a
             session broker) has already authenticated the caller
             by the time a request reaches this service; this
             middleware only trusts and threads that identity
             through.
Suitability: L4 model required for auth-adjacent middleware design.
──────────────────────────────────────────────────────────────
*/

package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type contextKey string

const (
	// APIKeyContextKey stores the caller's presented key in request context.
	APIKeyContextKey contextKey = "api_key"
	// UserIDContextKey stores the resolved caller ID in request context.
	UserIDContextKey contextKey = "user_id"
)

// AuthMiddleware attaches a pre-established caller identity to every
// request. It does not perform authentication itself — that is a
// Non-goal — it only extracts and, optionally, caches the caller ID a
// prior hop already attached via CacheValidation.
type AuthMiddleware struct {
	logger    zerolog.Logger
	cache     sync.Map // caller key -> *cachedAuth, to skip re-resolution on hot paths
	cacheTTL  time.Duration
	headerKey string
}

type cachedAuth struct {
	userID    string
	expiresAt time.Time
}

// NewAuthMiddleware creates a new identity-attaching middleware reading
// headerKey (defaulting to "Authorization") off each request.
func NewAuthMiddleware(logger zerolog.Logger, headerKey string) *AuthMiddleware {
	if headerKey == "" {
		headerKey = "Authorization"
	}
	return &AuthMiddleware{
		logger:    logger,
		cacheTTL:  5 * time.Minute,
		headerKey: headerKey,
	}
}

// Handler returns the middleware handler function.
func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get(am.headerKey)
		if authHeader == "" {
			http.Error(w, `{"error":"missing identity","message":"`+am.headerKey+` header required"}`, http.StatusUnauthorized)
			return
		}

		apiKey := authHeader
		if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			apiKey = authHeader[7:]
		}

		if apiKey == "" {
			http.Error(w, `{"error":"invalid identity","message":"caller key cannot be empty"}`, http.StatusUnauthorized)
			return
		}

		if cached, ok := am.cache.Load(apiKey); ok {
			ca := cached.(*cachedAuth)
			if time.Now().Before(ca.expiresAt) {
				ctx := context.WithValue(r.Context(), APIKeyContextKey, apiKey)
				ctx = context.WithValue(ctx, UserIDContextKey, ca.userID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			am.cache.Delete(apiKey)
		}

		// No cached resolution: the caller ID defaults to the presented key
		// itself. Handlers that need a richer identity (role, budget tier)
		// resolve it from the permission-granted projection downstream and
		// may call CacheValidation to avoid repeating that lookup.
		ctx := context.WithValue(r.Context(), APIKeyContextKey, apiKey)
		ctx = context.WithValue(ctx, UserIDContextKey, apiKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CacheValidation stores a resolved caller ID for apiKey so subsequent
// requests skip re-resolution until cacheTTL expires.
func (am *AuthMiddleware) CacheValidation(apiKey, userID string) {
	am.cache.Store(apiKey, &cachedAuth{
		userID:    userID,
		expiresAt: time.Now().Add(am.cacheTTL),
	})
}

// GetAPIKey extracts the caller's presented key from the request context.
func GetAPIKey(ctx context.Context) string {
	if v, ok := ctx.Value(APIKeyContextKey).(string); ok {
		return v
	}
	return ""
}

// GetUserID extracts the resolved caller ID from the request context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDContextKey).(string); ok {
		return v
	}
	return ""
}
