package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/ayo6706/trade-escrow/internal/service"
	"go.uber.org/zap"
)

// maxWebhookBody bounds what an unauthenticated caller can make us buffer.
const maxWebhookBody = 64 << 10

// WebhookHandler handles deposit notifications from the banking partner.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler instance.
func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookSvc: webhookSvc,
	}
}

// HandleDepositWebhook handles POST /v1/webhooks/deposits.
// It verifies the HMAC signature and credits the organization's wallet once per reference.
func (h *WebhookHandler) HandleDepositWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		zap.L().Warn("read webhook body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	resp, err := h.webhookSvc.HandleDepositWebhook(r.Context(), body, r.Header.Get("X-Webhook-Signature"))
	switch {
	case err == nil:
		RespondJSON(w, http.StatusOK, resp)
	case errors.Is(err, service.ErrInvalidSignature):
		RespondError(w, r, http.StatusUnauthorized, "webhooks/invalid-signature", "Invalid signature")
	case errors.Is(err, service.ErrDepositPayloadMismatch):
		RespondError(w, r, http.StatusConflict, "webhooks/reference-conflict", err.Error())
	default:
		writeServiceError(w, r, "webhooks", err)
	}
}
