package handler

import (
	"net/http"
	"strings"

	"github.com/ayo6706/trade-escrow/internal/service"
)

// FXHandler serves oracle rates and locked quotes.
type FXHandler struct {
	fx *service.FXQuoteService
}

func NewFXHandler(fx *service.FXQuoteService) *FXHandler {
	return &FXHandler{fx: fx}
}

// Rates handles GET /v1/fx/rates?base=&symbols=EUR,GBP.
func (h *FXHandler) Rates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var symbols []string
	for _, s := range strings.Split(q.Get("symbols"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	snap, err := h.fx.Rates(r.Context(), q.Get("base"), symbols)
	if err != nil {
		writeServiceError(w, r, "fx", err)
		return
	}
	RespondJSON(w, http.StatusOK, snap)
}

type quoteRequest struct {
	From         string `json:"from"`
	To           string `json:"to"`
	AmountMicros int64  `json:"amount_micros"`
}

// Quote handles POST /v1/fx/quote.
func (h *FXHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	quote, err := h.fx.Quote(r.Context(), req.From, req.To, req.AmountMicros)
	if err != nil {
		writeServiceError(w, r, "fx", err)
		return
	}
	RespondJSON(w, http.StatusCreated, quote)
}
