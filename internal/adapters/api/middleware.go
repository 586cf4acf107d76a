package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/poyrazK/nameregistry/internal/core/ports"
	"github.com/poyrazK/nameregistry/internal/infrastructure/metrics"
)

type contextKey string

const (
	CtxAccount contextKey = "account"
	CtxRole    contextKey = "role"
)

// HashKey returns the stored form of a raw API key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// AccountFrom returns the authenticated account attached by AuthMiddleware.
func AccountFrom(ctx context.Context) (domain.Account, bool) {
	acct, ok := ctx.Value(CtxAccount).(domain.Account)
	return acct, ok && acct != ""
}

func AuthMiddleware(repo ports.APIKeyRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				writeStatus(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid authorization header")
				return
			}

			apiKey, err := repo.GetAPIKeyByHash(r.Context(), HashKey(strings.TrimPrefix(authHeader, "Bearer ")))
			if err != nil {
				writeStatus(w, http.StatusInternalServerError, "internal", "internal server error")
				return
			}

			if apiKey == nil || !apiKey.Active {
				writeStatus(w, http.StatusUnauthorized, "unauthenticated", "invalid or inactive API key")
				return
			}
			if !apiKey.IsUsable(time.Now()) {
				writeStatus(w, http.StatusUnauthorized, "unauthenticated", "API key expired")
				return
			}

			ctx := context.WithValue(r.Context(), CtxAccount, apiKey.Account)
			ctx = context.WithValue(ctx, CtxRole, apiKey.Role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := r.Context().Value(CtxRole).(domain.Role)
			if !ok {
				writeStatus(w, http.StatusForbidden, string(domain.CodeUnauthorized), "role not found in context")
				return
			}
			if !slices.Contains(roles, role) {
				writeStatus(w, http.StatusForbidden, string(domain.CodeUnauthorized), "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware rejects requests from clients that exhausted their bucket.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientIP(r)) {
				metrics.RateLimited.Inc()
				w.Header().Set("Retry-After", "1")
				writeStatus(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
