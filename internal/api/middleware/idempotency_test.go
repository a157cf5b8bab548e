package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ayo6706/trade-escrow/internal/api/problem"
	"github.com/ayo6706/trade-escrow/internal/idempotency"
	"github.com/ayo6706/trade-escrow/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// paymentsStub answers like POST /v1/payments, keyed on the "amount" in the body.
type paymentsStub struct {
	calls int
}

func (s *paymentsStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.calls++
	var req struct {
		Amount int `json:"amount"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	switch {
	case req.Amount <= 0:
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/validation"), "", "amount must be positive")
	case req.Amount > 100:
		problem.WriteExtended(w, r, http.StatusBadRequest, problem.Type("payments/insufficient-funds"), "", "insufficient funds",
			map[string]any{"payment_id": "p-failed", "payment_status": "failed"})
	case req.Amount == 13:
		http.Error(w, "boom", http.StatusInternalServerError)
	case req.Amount == 66:
		panic("handler bug")
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p-ok"}`))
	}
}

func newIdempotentStub(t *testing.T) (http.Handler, *paymentsStub) {
	t.Helper()
	stub := &paymentsStub{}
	store := idempotency.NewStore(nil, memory.NewStore(), time.Hour)
	h := RecoverMiddleware(zap.NewNop())(IdempotencyMiddleware(store, zap.NewNop())(stub))
	return h, stub
}

func postPayment(h http.Handler, key, body string) *httptest.ResponseRecorder {
	ctx := context.WithValue(context.Background(), userContextKey, "user-1")
	ctx = context.WithValue(ctx, orgContextKey, "org-1")
	req := httptest.NewRequest(http.MethodPost, "/v1/payments", strings.NewReader(body)).WithContext(ctx)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestIdempotencyRejectsMalformedKeys(t *testing.T) {
	h, stub := newIdempotentStub(t)

	w := postPayment(h, "", `{"amount":5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "idempotency/missing-key")

	w = postPayment(h, "two words", `{"amount":5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "idempotency/invalid-key")

	w = postPayment(h, strings.Repeat("k", 256), `{"amount":5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, stub.calls)
}

func TestIdempotencyReleasesKeyAfterRejectedRequest(t *testing.T) {
	h, stub := newIdempotentStub(t)

	w := postPayment(h, "pay-1", `{"amount":0}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = postPayment(h, "pay-1", `{"amount":5}`)
	require.Equal(t, http.StatusCreated, w.Code, "a corrected request may reuse the key")
	assert.Empty(t, w.Header().Get("X-Idempotent-Replay"))

	w = postPayment(h, "pay-1", `{"amount":5}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "database", w.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, "pay-1", w.Header().Get("Idempotency-Key"))
	assert.JSONEq(t, `{"id":"p-ok"}`, w.Body.String())

	w = postPayment(h, "pay-1", `{"amount":0}`)
	assert.Equal(t, http.StatusConflict, w.Code, "a finalized key stays bound to its request")
	assert.Equal(t, 2, stub.calls)
}

func TestIdempotencyReplaysFailedPayment(t *testing.T) {
	h, stub := newIdempotentStub(t)

	first := postPayment(h, "pay-2", `{"amount":500}`)
	require.Equal(t, http.StatusBadRequest, first.Code)

	again := postPayment(h, "pay-2", `{"amount":500}`)
	require.Equal(t, http.StatusBadRequest, again.Code)
	assert.Equal(t, "database", again.Header().Get("X-Idempotent-Replay"))
	assert.Contains(t, again.Header().Get("Content-Type"), "application/problem+json")
	assert.JSONEq(t, first.Body.String(), again.Body.String())
	assert.Equal(t, 1, stub.calls, "the recorded failure is not attempted twice")
}

func TestIdempotencyReleasesKeyAfterServerErrorOrPanic(t *testing.T) {
	h, stub := newIdempotentStub(t)

	require.Equal(t, http.StatusInternalServerError, postPayment(h, "pay-3", `{"amount":13}`).Code)
	require.Equal(t, http.StatusInternalServerError, postPayment(h, "pay-3", `{"amount":13}`).Code)
	assert.Equal(t, 2, stub.calls, "server errors are retried, not replayed")

	require.Equal(t, http.StatusInternalServerError, postPayment(h, "pay-4", `{"amount":66}`).Code)
	w := postPayment(h, "pay-4", `{"amount":5}`)
	assert.Equal(t, http.StatusCreated, w.Code, "a panic does not leave the key held")
}
