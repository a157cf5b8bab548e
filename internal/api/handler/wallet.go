package handler

import (
	"net/http"

	"github.com/ayo6706/trade-escrow/internal/service"
	"github.com/google/uuid"
)

// WalletHandler exposes ledger balances.
type WalletHandler struct {
	ledger *service.LedgerService
}

func NewWalletHandler(ledger *service.LedgerService) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

// List handles GET /v1/wallets?org_id=. Callers see their own organization; admins may name any.
func (h *WalletHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	orgID := actor.OrgID
	if raw := r.URL.Query().Get("org_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-org-id", "Invalid org_id")
			return
		}
		if parsed != actor.OrgID && !actor.IsAdmin() {
			RespondError(w, r, http.StatusForbidden, "wallets/forbidden", "wallets of another organization are not visible")
			return
		}
		orgID = parsed
	}
	if orgID == uuid.Nil {
		RespondError(w, r, http.StatusBadRequest, "request/missing-org-id", "org_id is required")
		return
	}
	wallets, err := h.ledger.ListWallets(r.Context(), orgID)
	if err != nil {
		writeServiceError(w, r, "wallets", err)
		return
	}
	RespondJSON(w, http.StatusOK, wallets)
}
