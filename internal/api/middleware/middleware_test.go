package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTraceMiddlewareReusesSaneIDs(t *testing.T) {
	var seen string
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	cases := []struct {
		name   string
		header string
		value  string
		reused bool
	}{
		{"trace header", "X-Trace-ID", "trace-1234567", true},
		{"request id header", "X-Request-ID", "req:abcdefgh", true},
		{"too short", "X-Trace-ID", "abc", false},
		{"bad characters", "X-Trace-ID", "abc def\nghij", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(tc.header, tc.value)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, w.Header().Get("X-Trace-ID"))
			if tc.reused {
				assert.Equal(t, tc.value, seen)
			} else {
				assert.NotEqual(t, tc.value, seen)
			}
		})
	}
}

func TestAuthRateLimiterSharesOrganizationBudget(t *testing.T) {
	h := AuthRateLimiter(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	call := func(user, org string) int {
		ctx := context.WithValue(context.Background(), userContextKey, user)
		ctx = context.WithValue(ctx, orgContextKey, org)
		req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, call("u1", "org-a"))
	assert.Equal(t, http.StatusTooManyRequests, call("u2", "org-a"), "second user of the same org")
	assert.Equal(t, http.StatusNoContent, call("u3", "org-b"))
}

func TestRecoverMiddlewareWritesProblem(t *testing.T) {
	h := RecoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/deals", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
}
