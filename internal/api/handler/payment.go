package handler

import (
	"errors"
	"net/http"

	"github.com/ayo6706/trade-escrow/internal/api/problem"
	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/service"
	"github.com/google/uuid"
)

// PaymentHandler serves buyer payments against deals.
type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type createPaymentRequest struct {
	DealID       uuid.UUID  `json:"deal_id"`
	AmountMicros int64      `json:"amount_micros"`
	Currency     string     `json:"currency"`
	FXQuoteID    *uuid.UUID `json:"fx_quote_id"`
}

// Create handles POST /v1/payments. It reserves funds and leaves the payment pending until
// the buyer confirms receipt. A reservation that fails for lack of funds still records a
// failed payment, whose id is returned in the problem body.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	var req createPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DealID == uuid.Nil {
		RespondError(w, r, http.StatusBadRequest, "request/missing-deal-id", "deal_id is required")
		return
	}
	payment, err := h.payments.CreatePayment(r.Context(), actor, service.CreatePaymentInput{
		DealID:       req.DealID,
		AmountMicros: req.AmountMicros,
		Currency:     req.Currency,
		FXQuoteID:    req.FXQuoteID,
	})
	switch {
	case err == nil:
		RespondJSON(w, http.StatusCreated, payment)
	case errors.Is(err, domain.ErrInsufficientFunds) && payment != nil:
		problem.WriteExtended(w, r, http.StatusBadRequest, problem.Type("payments/insufficient-funds"), "",
			err.Error(), map[string]any{"payment_id": payment.ID.String(), "payment_status": payment.Status})
	case errors.Is(err, domain.ErrExpired):
		RespondError(w, r, http.StatusBadRequest, "fx/quote-expired", err.Error())
	default:
		writeServiceError(w, r, "payments", err)
	}
}

// Get handles GET /v1/payments/{id}.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	actOnID(w, r, "payments", h.payments.Get)
}

// List handles GET /v1/payments?deal_id=&role=&status=.
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	lf, ok := listFilter(w, r)
	if !ok {
		return
	}
	f := service.PaymentFilter{Role: lf.Role, Status: lf.Status, Limit: lf.Limit, Offset: lf.Offset}
	if raw := r.URL.Query().Get("deal_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-deal-id", "Invalid deal_id")
			return
		}
		f.DealID = &id
	}
	payments, err := h.payments.List(r.Context(), actor, f)
	if err != nil {
		writeServiceError(w, r, "payments", err)
		return
	}
	RespondJSON(w, http.StatusOK, payments)
}

type failPaymentRequest struct {
	Reason string `json:"reason"`
}

// Fail handles POST /v1/payments/{id}/fail. Admin only; releases the hold.
func (h *PaymentHandler) Fail(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req failPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	payment, err := h.payments.FailPayment(r.Context(), actor, id, req.Reason)
	if err != nil {
		writeServiceError(w, r, "payments", err)
		return
	}
	RespondJSON(w, http.StatusOK, payment)
}
