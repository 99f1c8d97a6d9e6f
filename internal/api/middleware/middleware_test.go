package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/craftlist/internal/auth"
	"github.com/btouchard/craftlist/internal/config"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func TestBearerAuth(t *testing.T) {
	t.Parallel()

	tokens := auth.NewTokenSet([]config.APITokenEntry{
		{Name: "panel", TokenHash: auth.HashToken("s3cret"), UserID: 5},
	})

	var seen auth.Identity
	h := BearerAuth(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.IdentityFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantAuth   string
	}{
		{"missing header", "", http.StatusUnauthorized, `Bearer realm="craftlist"`},
		{"wrong scheme", "Basic czNjcmV0", http.StatusUnauthorized, `Bearer realm="craftlist"`},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, `Bearer error="invalid_token"`},
		{"valid token", "Bearer s3cret", http.StatusNoContent, ""},
		{"scheme is case-insensitive", "bearer s3cret", http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/categories", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAuth, rec.Header().Get("WWW-Authenticate"))
			if tt.wantStatus == http.StatusUnauthorized {
				var body ErrorBody
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, http.StatusUnauthorized, body.Code)
			}
		})
	}

	assert.Equal(t, auth.Identity{Name: "panel", UserID: 5}, seen)
}

func TestIPRateLimiter_PerIPBudget(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	l := NewIPRateLimiter(60, 2, clock)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, l.Allow("10.0.0.2"), "other IPs have their own bucket")

	clock.Advance(time.Second)
	assert.True(t, l.Allow("10.0.0.1"), "one token refilled after a second at 60/min")
}

func TestIPRateLimiter_ForgetsIdleVisitors(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	l := NewIPRateLimiter(60, 1, clock)

	l.Allow("10.0.0.1")
	l.Allow("10.0.0.2")
	clock.Advance(rateLimiterExpiry + time.Second)
	l.Allow("10.0.0.3")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.visitors, 1)
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	t.Parallel()
	l := NewIPRateLimiter(60, 1, clockwork.NewFakeClock())
	h := l.Middleware(http.HandlerFunc(okHandler))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/servers", nil)
		req.RemoteAddr = "192.0.2.7:51234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do().Code)

	rec := do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, rec.Body.String())
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Use(RequestLogger)
	r.Get("/api/servers/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/servers/3", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
}
