package handler

import (
	"net/http"
	"time"

	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/ayo6706/trade-escrow/internal/service"
)

// OfferHandler serves supplier offers and the buyer's decision on them.
type OfferHandler struct {
	offers *service.OfferService
}

func NewOfferHandler(offers *service.OfferService) *OfferHandler {
	return &OfferHandler{offers: offers}
}

type createOfferRequest struct {
	Currency     string             `json:"currency"`
	Items        []models.OfferItem `json:"items"`
	Incoterms    *string            `json:"incoterms"`
	PaymentTerms *string            `json:"payment_terms"`
	ValidUntil   *time.Time         `json:"valid_until"`
}

// Create handles POST /v1/rfqs/{id}/offers.
func (h *OfferHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	rfqID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req createOfferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	offer, err := h.offers.Create(r.Context(), actor, rfqID, service.CreateOfferInput{
		Currency:     req.Currency,
		Items:        req.Items,
		Incoterms:    req.Incoterms,
		PaymentTerms: req.PaymentTerms,
		ValidUntil:   req.ValidUntil,
	})
	if err != nil {
		writeServiceError(w, r, "offers", err)
		return
	}
	RespondJSON(w, http.StatusCreated, offer)
}

// ListByRFQ handles GET /v1/rfqs/{id}/offers.
func (h *OfferHandler) ListByRFQ(w http.ResponseWriter, r *http.Request) {
	actOnID(w, r, "offers", h.offers.ListByRFQ)
}

// Get handles GET /v1/offers/{id}.
func (h *OfferHandler) Get(w http.ResponseWriter, r *http.Request) {
	actOnID(w, r, "offers", h.offers.Get)
}

// Accept handles POST /v1/offers/{id}/accept. The response carries the order and deal it created.
func (h *OfferHandler) Accept(w http.ResponseWriter, r *http.Request) {
	actOnID(w, r, "offers", h.offers.Accept)
}

// Reject handles POST /v1/offers/{id}/reject.
func (h *OfferHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actOnID(w, r, "offers", h.offers.Reject)
}
