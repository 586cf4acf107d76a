package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/poyrazK/nameregistry/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAuthMiddleware(t *testing.T) {
	mockRepo := new(testutil.MockAPIKeyRepo)
	handler := AuthMiddleware(mockRepo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct, _ := AccountFrom(r.Context())
		w.Header().Set("X-Account", acct.String())
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(authHeader string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/names/alice", nil)
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	t.Run("Missing Authorization Header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve("").Code)
	})

	t.Run("Wrong Scheme", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve("Basic abc").Code)
	})

	t.Run("Unknown Key", func(t *testing.T) {
		mockRepo.On("GetAPIKeyByHash", HashKey("nrk_unknown")).Return(nil, nil).Once()
		assert.Equal(t, http.StatusUnauthorized, serve("Bearer nrk_unknown").Code)
	})

	t.Run("Valid Key", func(t *testing.T) {
		key := &domain.APIKey{Account: "acct-1", Role: domain.RoleUser, Active: true}
		mockRepo.On("GetAPIKeyByHash", HashKey("nrk_valid")).Return(key, nil).Once()

		rr := serve("Bearer nrk_valid")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "acct-1", rr.Header().Get("X-Account"))
	})

	t.Run("Expired Key", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		key := &domain.APIKey{Account: "acct-1", Role: domain.RoleUser, Active: true, ExpiresAt: &past}
		mockRepo.On("GetAPIKeyByHash", HashKey("nrk_expired")).Return(key, nil).Once()
		assert.Equal(t, http.StatusUnauthorized, serve("Bearer nrk_expired").Code)
	})

	t.Run("Revoked Key", func(t *testing.T) {
		key := &domain.APIKey{Account: "acct-1", Role: domain.RoleUser, Active: false}
		mockRepo.On("GetAPIKeyByHash", HashKey("nrk_revoked")).Return(key, nil).Once()
		assert.Equal(t, http.StatusUnauthorized, serve("Bearer nrk_revoked").Code)
	})

	t.Run("Repository Error", func(t *testing.T) {
		mockRepo.On("GetAPIKeyByHash", HashKey("nrk_err")).Return(nil, errors.New("db down")).Once()
		assert.Equal(t, http.StatusInternalServerError, serve("Bearer nrk_err").Code)
	})

	mockRepo.AssertExpectations(t)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(domain.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name string
		role any
		want int
	}{
		{"admin", domain.RoleAdmin, http.StatusOK},
		{"user", domain.RoleUser, http.StatusForbidden},
		{"missing", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/pause", nil)
			if tt.role != nil {
				req = req.WithContext(withRole(req, tt.role.(domain.Role)))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return time.Unix(0, 0) }
	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/names/alice", nil)
		req.RemoteAddr = "198.51.100.7:4242"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// a different client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/names/alice", nil)
	req.RemoteAddr = "198.51.100.8:4242"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
