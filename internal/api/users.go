package api

import (
	"net/http"

	"ms-checkout/internal/auth"

	"github.com/go-chi/chi/v5"
)

// UserPoints handles GET /api/users/points
func (h *Handler) UserPoints(w http.ResponseWriter, r *http.Request) {
	balance, err := h.Wallet.Points(r.Context(), auth.UserID(r.Context()), h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Points", balance)
}

// UserCoupons handles GET /api/users/coupons
func (h *Handler) UserCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.Wallet.Coupons(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Coupons", coupons)
}

// EventVouchers handles GET /api/users/vouchers/{eventId}
func (h *Handler) EventVouchers(w http.ResponseWriter, r *http.Request) {
	vouchers, err := h.Wallet.EventVouchers(r.Context(), chi.URLParam(r, "eventId"), h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Vouchers", vouchers)
}
