package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/trade-escrow/internal/api"
	"github.com/ayo6706/trade-escrow/internal/api/middleware"
	"github.com/ayo6706/trade-escrow/internal/config"
	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/events"
	"github.com/ayo6706/trade-escrow/internal/idempotency"
	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/ayo6706/trade-escrow/internal/observability"
	"github.com/ayo6706/trade-escrow/internal/repository/memory"
	"github.com/ayo6706/trade-escrow/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "trade-escrow-test"
	testJWTAudience = "trade-escrow-api-test"
	testWebhookKey  = "test-webhook-key"
)

func TestMain(m *testing.M) {
	observability.Init()
	middleware.SetJWTSecret(testJWTSecret)
	middleware.SetJWTValidation(testJWTIssuer, testJWTAudience)
	os.Exit(m.Run())
}

type testAPI struct {
	handler http.Handler
	events  *events.Recorder
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.NewStore()
	recorder := &events.Recorder{}
	cfg := &config.Config{
		HTTPPort:           "0",
		StoreBackend:       config.StoreMemory,
		JWTSecret:          testJWTSecret,
		JWTIssuer:          testJWTIssuer,
		JWTAudience:        testJWTAudience,
		WebhookHMACKey:     testWebhookKey,
		PublicRateLimitRPS: 1000,
		AuthRateLimitRPS:   1000,
		IdempotencyTTL:     time.Hour,
		FXQuoteTTL:         time.Minute,
	}
	svc := service.New(store, service.NewStaticRateOracle(nil), nil, recorder, service.Options{
		FXQuoteTTL:     cfg.FXQuoteTTL,
		WebhookHMACKey: cfg.WebhookHMACKey,
	})
	idemStore := idempotency.NewStore(nil, store, cfg.IdempotencyTTL)
	return &testAPI{
		handler: api.NewRouter(cfg, zap.NewNop(), store, nil, idemStore, svc).Routes(),
		events:  recorder,
	}
}

type principal struct {
	userID uuid.UUID
	orgID  uuid.UUID
	role   string
	token  string
}

func newPrincipal(t *testing.T, role string) principal {
	t.Helper()
	p := principal{userID: uuid.New(), orgID: uuid.New(), role: role}
	org := p.orgID.String()
	if role == domain.RoleAdmin {
		p.orgID = uuid.Nil
		org = ""
	}
	p.token = generateToken(t, p.userID.String(), org, role)
	return p
}

func generateToken(t *testing.T, userID, orgID, role string) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"iss":     testJWTIssuer,
		"aud":     testJWTAudience,
		"sub":     userID,
		"iat":     now.Unix(),
		"nbf":     now.Add(-30 * time.Second).Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	}
	if orgID != "" {
		claims["org_id"] = orgID
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(middleware.JWTSecret())
	require.NoError(t, err)
	return token
}

func (a *testAPI) do(t *testing.T, method, path string, who *principal, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if who != nil {
		req.Header.Set("Authorization", "Bearer "+who.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (a *testAPI) deposit(t *testing.T, org uuid.UUID, currency string, micros int64, reference string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"org_id":        org.String(),
		"amount_micros": micros,
		"currency":      currency,
		"reference":     reference,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/deposits", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", service.SignPayload([]byte(testWebhookKey), payload))
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

// acceptedDeal drives RFQ -> send -> offer -> accept over HTTP for 10 widgets at unitPrice.
func (a *testAPI) acceptedDeal(t *testing.T, buyer, supplier principal, currency, unitPrice string) service.AcceptResult {
	t.Helper()
	w := a.do(t, http.MethodPost, "/v1/rfqs", &buyer, map[string]any{
		"supplier_org_id": supplier.orgID,
		"items":           []map[string]any{{"name": "Widget", "quantity": "10", "unit": "pcs"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rfq := decode[models.RFQ](t, w)
	assert.Equal(t, domain.RFQStatusDraft, rfq.Status)

	w = a.do(t, http.MethodPost, "/v1/rfqs/"+rfq.ID.String()+"/send", &buyer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/v1/rfqs/"+rfq.ID.String()+"/offers", &supplier, map[string]any{
		"currency": currency,
		"items": []map[string]any{{
			"rfq_item_index": 0,
			"name":           "Widget",
			"quantity":       "10",
			"unit":           "pcs",
			"unit_price":     unitPrice,
		}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	offer := decode[models.Offer](t, w)

	w = a.do(t, http.MethodPost, "/v1/offers/"+offer.ID.String()+"/accept", &buyer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[service.AcceptResult](t, w)
}

func TestRFC7807ProblemDetails(t *testing.T) {
	a := setupAPI(t)
	id := uuid.New().String()

	w := a.do(t, http.MethodGet, "/v1/deals/"+id, nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")

	body := decode[map[string]any](t, w)
	assert.NotEmpty(t, body["type"])
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
	assert.NotEmpty(t, body["title"])
	assert.NotEmpty(t, body["detail"])
	assert.Equal(t, "/v1/deals/"+id, body["instance"])
	assert.NotEmpty(t, body["request_id"])
}

func TestTokenWithoutOrganizationRejected(t *testing.T) {
	a := setupAPI(t)
	who := principal{token: generateToken(t, uuid.NewString(), "", domain.RoleBuyer)}

	w := a.do(t, http.MethodGet, "/v1/deals", &who, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, decode[map[string]any](t, w)["type"], "auth/invalid-token-claims")
}

func TestEscrowLifecycle(t *testing.T) {
	a := setupAPI(t)
	buyer := newPrincipal(t, domain.RoleBuyer)
	supplier := newPrincipal(t, domain.RoleSupplier)

	res := a.acceptedDeal(t, buyer, supplier, "USD", "2")
	require.NotNil(t, res.Deal)
	require.NotNil(t, res.Order)
	assert.Equal(t, domain.OfferStatusAccepted, res.Offer.Status)
	assert.Equal(t, domain.DealStatusNegotiation, res.Deal.Status)
	assert.Equal(t, int64(20_000_000), res.Order.TotalMicros)
	dealPath := "/v1/deals/" + res.Deal.ID.String()

	w := a.deposit(t, buyer.orgID, "USD", 25_000_000, "dep-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = a.deposit(t, buyer.orgID, "USD", 25_000_000, "dep-1")
	require.Equal(t, http.StatusOK, w.Code, "redelivery is acknowledged")

	w = a.do(t, http.MethodGet, "/v1/wallets?org_id="+buyer.orgID.String(), &buyer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	wallets := decode[[]models.Wallet](t, w)
	require.Len(t, wallets, 1)
	assert.Equal(t, int64(25_000_000), wallets[0].AvailableMicros, "the same reference credits once")

	payBody := map[string]any{"deal_id": res.Deal.ID, "amount_micros": 20_000_000, "currency": "USD"}
	w = a.do(t, http.MethodPost, "/v1/payments", &buyer, payBody, "Idempotency-Key", "pay-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	payment := decode[models.Payment](t, w)
	assert.Equal(t, domain.PaymentStatusPending, payment.Status)

	replay := a.do(t, http.MethodPost, "/v1/payments", &buyer, payBody, "Idempotency-Key", "pay-1")
	require.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "database", replay.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, payment.ID, decode[models.Payment](t, replay).ID)

	w = a.do(t, http.MethodGet, "/v1/wallets", &buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	wallets = decode[[]models.Wallet](t, w)
	require.Len(t, wallets, 1)
	assert.Equal(t, int64(5_000_000), wallets[0].AvailableMicros)
	assert.Equal(t, int64(20_000_000), wallets[0].HeldMicros, "the replay did not reserve twice")

	w = a.do(t, http.MethodGet, "/v1/payments?deal_id="+res.Deal.ID.String(), &supplier, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	listed := decode[[]models.Payment](t, w)
	require.Len(t, listed, 1, "the payee sees the payment too")
	assert.Equal(t, payment.ID, listed[0].ID)
	w = a.do(t, http.MethodGet, "/v1/payments?deal_id=nope", &buyer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, dealPath+"/confirm-receipt", &buyer, nil)
	require.Equal(t, http.StatusConflict, w.Code, "receipt needs delivery first")

	w = a.do(t, http.MethodPost, dealPath+"/delivery", &buyer, nil)
	require.Equal(t, http.StatusForbidden, w.Code, "only the supplier reports delivery")

	w = a.do(t, http.MethodPost, dealPath+"/delivery", &supplier, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[models.DealLogistics](t, w).Delivered)

	w = a.do(t, http.MethodPost, dealPath+"/confirm-receipt", &buyer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	receipt := decode[service.ReceiptResult](t, w)
	require.Len(t, receipt.Completed, 1)
	assert.Equal(t, domain.PaymentStatusCompleted, receipt.Completed[0].Status)
	assert.Equal(t, domain.DealStatusPaid, receipt.Deal.Status)

	w = a.do(t, http.MethodGet, "/v1/wallets", &supplier, nil)
	require.Equal(t, http.StatusOK, w.Code)
	wallets = decode[[]models.Wallet](t, w)
	require.Len(t, wallets, 1)
	assert.Equal(t, int64(20_000_000), wallets[0].AvailableMicros)

	w = a.do(t, http.MethodPost, dealPath+"/close", &buyer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.DealStatusClosed, decode[models.Deal](t, w).Status)

	w = a.do(t, http.MethodGet, dealPath, &supplier, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[service.DealView](t, w)
	assert.Equal(t, domain.DealStatusClosed, view.Deal.Status)
	assert.Equal(t, domain.OrderStatusCompleted, view.Order.Status)
	require.Len(t, view.Payments, 1)

	w = a.do(t, http.MethodGet, dealPath+"/history", &buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[[]models.AuditLog](t, w))

	outsider := newPrincipal(t, domain.RoleBuyer)
	w = a.do(t, http.MethodGet, dealPath, &outsider, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Contains(t, a.events.Types(), events.TypeDealCreated)
	assert.Contains(t, a.events.Types(), events.TypePaymentCompleted)
	assert.Contains(t, a.events.Types(), events.TypeWalletCredited)
}

func TestIdempotencyKeyRequiredAndScoped(t *testing.T) {
	a := setupAPI(t)
	buyer := newPrincipal(t, domain.RoleBuyer)
	supplier := newPrincipal(t, domain.RoleSupplier)
	res := a.acceptedDeal(t, buyer, supplier, "USD", "2")
	a.deposit(t, buyer.orgID, "USD", 50_000_000, "dep-scope")

	body := map[string]any{"deal_id": res.Deal.ID, "amount_micros": 1_000_000, "currency": "USD"}
	w := a.do(t, http.MethodPost, "/v1/payments", &buyer, body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[map[string]any](t, w)["type"], "idempotency/missing-key")

	w = a.do(t, http.MethodPost, "/v1/payments", &buyer, body, "Idempotency-Key", "k")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body["amount_micros"] = 2_000_000
	w = a.do(t, http.MethodPost, "/v1/payments", &buyer, body, "Idempotency-Key", "k")
	require.Equal(t, http.StatusConflict, w.Code, "same key with a different body")
}

func TestInsufficientFundsCarriesPaymentID(t *testing.T) {
	a := setupAPI(t)
	buyer := newPrincipal(t, domain.RoleBuyer)
	supplier := newPrincipal(t, domain.RoleSupplier)
	res := a.acceptedDeal(t, buyer, supplier, "USD", "2")

	w := a.do(t, http.MethodPost, "/v1/payments", &buyer,
		map[string]any{"deal_id": res.Deal.ID, "amount_micros": 5_000_000, "currency": "USD"},
		"Idempotency-Key", "broke")
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	body := decode[map[string]any](t, w)
	assert.Contains(t, body["type"], "payments/insufficient-funds")
	assert.Equal(t, domain.PaymentStatusFailed, body["payment_status"])
	paymentID, ok := body["payment_id"].(string)
	require.True(t, ok)

	retry := a.do(t, http.MethodPost, "/v1/payments", &buyer,
		map[string]any{"deal_id": res.Deal.ID, "amount_micros": 5_000_000, "currency": "USD"},
		"Idempotency-Key", "broke")
	require.Equal(t, http.StatusBadRequest, retry.Code)
	assert.Equal(t, "database", retry.Header().Get("X-Idempotent-Replay"), "the failed payment is replayed, not retried")
	assert.Equal(t, paymentID, decode[map[string]any](t, retry)["payment_id"])

	w = a.do(t, http.MethodGet, "/v1/payments?deal_id="+res.Deal.ID.String(), &buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Payment](t, w), 1)

	w = a.do(t, http.MethodGet, "/v1/payments/"+paymentID, &buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	payment := decode[models.Payment](t, w)
	require.NotNil(t, payment.FailureReason)
	assert.Equal(t, "insufficient_funds", *payment.FailureReason)
}

func TestAdminFailsPendingPayment(t *testing.T) {
	a := setupAPI(t)
	buyer := newPrincipal(t, domain.RoleBuyer)
	supplier := newPrincipal(t, domain.RoleSupplier)
	admin := newPrincipal(t, domain.RoleAdmin)
	res := a.acceptedDeal(t, buyer, supplier, "USD", "2")
	a.deposit(t, buyer.orgID, "USD", 10_000_000, "dep-admin")

	w := a.do(t, http.MethodPost, "/v1/payments", &buyer,
		map[string]any{"deal_id": res.Deal.ID, "amount_micros": 10_000_000, "currency": "USD"},
		"Idempotency-Key", "to-fail")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	payment := decode[models.Payment](t, w)
	failPath := "/v1/payments/" + payment.ID.String() + "/fail"

	w = a.do(t, http.MethodPost, failPath, &buyer, map[string]string{"reason": "mine"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodPost, failPath, &admin, map[string]string{"reason": "fraud review"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.PaymentStatusFailed, decode[models.Payment](t, w).Status)

	w = a.do(t, http.MethodGet, "/v1/wallets?org_id="+buyer.orgID.String(), &admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	wallets := decode[[]models.Wallet](t, w)
	require.Len(t, wallets, 1)
	assert.Equal(t, int64(10_000_000), wallets[0].AvailableMicros)
	assert.Zero(t, wallets[0].HeldMicros)

	w = a.do(t, http.MethodGet, "/v1/wallets?org_id="+buyer.orgID.String(), &supplier, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFXQuoteEndpoints(t *testing.T) {
	a := setupAPI(t)
	buyer := newPrincipal(t, domain.RoleBuyer)

	w := a.do(t, http.MethodGet, "/v1/fx/rates?base=USD&symbols=EUR", &buyer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/v1/fx/quote", &buyer, map[string]any{"from": "USD", "to": "EUR", "amount_micros": 1_000_000})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	quote := decode[models.FXQuote](t, w)
	assert.Equal(t, int64(920_000), quote.ConvertedMicros)

	w = a.do(t, http.MethodPost, "/v1/fx/quote", &buyer, map[string]any{"from": "USD", "to": "USD", "amount_micros": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	a := setupAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/deposits", bytes.NewBufferString(`{"org_id":"x"}`))
	req.Header.Set("X-Webhook-Signature", "sha256=deadbeef")
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, decode[map[string]any](t, w)["type"], "webhooks/invalid-signature")
}

func TestHealthAndDocs(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodGet, "/openapi.yaml", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/v1/payments")
	w = a.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
