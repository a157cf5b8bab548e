package handler

import (
	"net/http"

	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/ayo6706/trade-escrow/internal/service"
	"github.com/google/uuid"
)

// RFQHandler serves the buyer's requests for quotation.
type RFQHandler struct {
	rfqs *service.RFQService
}

func NewRFQHandler(rfqs *service.RFQService) *RFQHandler {
	return &RFQHandler{rfqs: rfqs}
}

type rfqRequest struct {
	SupplierOrgID *uuid.UUID       `json:"supplier_org_id"`
	Items         []models.RFQItem `json:"items"`
}

// Create handles POST /v1/rfqs.
func (h *RFQHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	var req rfqRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rfq, err := h.rfqs.Create(r.Context(), actor, service.CreateRFQInput{SupplierOrgID: req.SupplierOrgID, Items: req.Items})
	if err != nil {
		writeServiceError(w, r, "rfqs", err)
		return
	}
	RespondJSON(w, http.StatusCreated, rfq)
}

// Update handles PATCH /v1/rfqs/{id}.
func (h *RFQHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req rfqRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rfq, err := h.rfqs.Update(r.Context(), actor, id, service.UpdateRFQInput{SupplierOrgID: req.SupplierOrgID, Items: req.Items})
	if err != nil {
		writeServiceError(w, r, "rfqs", err)
		return
	}
	RespondJSON(w, http.StatusOK, rfq)
}

// Send handles POST /v1/rfqs/{id}/send.
func (h *RFQHandler) Send(w http.ResponseWriter, r *http.Request) {
	actOnID(w, r, "rfqs", h.rfqs.Send)
}

// Close handles POST /v1/rfqs/{id}/close.
func (h *RFQHandler) Close(w http.ResponseWriter, r *http.Request) {
	actOnID(w, r, "rfqs", h.rfqs.Close)
}

// Get handles GET /v1/rfqs/{id}.
func (h *RFQHandler) Get(w http.ResponseWriter, r *http.Request) {
	actOnID(w, r, "rfqs", h.rfqs.Get)
}

// List handles GET /v1/rfqs?role=&status=.
func (h *RFQHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	f, ok := listFilter(w, r)
	if !ok {
		return
	}
	rfqs, err := h.rfqs.List(r.Context(), actor, f)
	if err != nil {
		writeServiceError(w, r, "rfqs", err)
		return
	}
	RespondJSON(w, http.StatusOK, rfqs)
}
