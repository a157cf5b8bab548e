package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ayo6706/trade-escrow/internal/service"
)

// DealHandler serves deals, their orders and the logistics gate.
type DealHandler struct {
	views     *service.DealViewService
	logistics *service.LogisticsService
}

func NewDealHandler(views *service.DealViewService, logistics *service.LogisticsService) *DealHandler {
	return &DealHandler{views: views, logistics: logistics}
}

// Get handles GET /v1/deals/{id} and returns the full aggregate.
func (h *DealHandler) Get(w http.ResponseWriter, r *http.Request) {
	actOnID(w, r, "deals", h.views.Get)
}

// List handles GET /v1/deals?role=&status=.
func (h *DealHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	f, ok := listFilter(w, r)
	if !ok {
		return
	}
	deals, err := h.views.List(r.Context(), actor, f)
	if err != nil {
		writeServiceError(w, r, "deals", err)
		return
	}
	RespondJSON(w, http.StatusOK, deals)
}

// History handles GET /v1/deals/{id}/history.
func (h *DealHandler) History(w http.ResponseWriter, r *http.Request) {
	actOnID(w, r, "deals", h.views.History)
}

// GetOrder handles GET /v1/orders/{id}.
func (h *DealHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actOnID(w, r, "orders", h.views.GetOrder)
}

// ListOrders handles GET /v1/orders?role=&status=.
func (h *DealHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	f, ok := listFilter(w, r)
	if !ok {
		return
	}
	orders, err := h.views.ListOrders(r.Context(), actor, f)
	if err != nil {
		writeServiceError(w, r, "orders", err)
		return
	}
	RespondJSON(w, http.StatusOK, orders)
}

type deliveryRequest struct {
	Status string `json:"status"`
}

// UpdateDelivery handles POST /v1/deals/{id}/delivery. An empty body or status "delivered"
// marks the goods delivered; any other status is recorded as the current logistics step.
func (h *DealHandler) UpdateDelivery(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req deliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = "delivered"
	}
	l, err := h.logistics.UpdateStatus(r.Context(), actor, id, status)
	if err != nil {
		writeServiceError(w, r, "deals", err)
		return
	}
	RespondJSON(w, http.StatusOK, l)
}

// ConfirmReceipt handles POST /v1/deals/{id}/confirm-receipt.
func (h *DealHandler) ConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	actOnID(w, r, "deals", h.logistics.ConfirmReceipt)
}

// Close handles POST /v1/deals/{id}/close.
func (h *DealHandler) Close(w http.ResponseWriter, r *http.Request) {
	actOnID(w, r, "deals", h.logistics.CloseDeal)
}
