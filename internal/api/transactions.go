package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ms-checkout/internal/apperrors"
	"ms-checkout/internal/auth"
	"ms-checkout/internal/checkout"
	"ms-checkout/internal/models"

	"github.com/go-chi/chi/v5"
)

// IdempotencyHeader lets clients retry a checkout without buying twice.
const IdempotencyHeader = "Idempotency-Key"

const proofField = "paymentProof"

// CreateCheckout handles POST /api/transactions/checkout
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req checkout.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	req.UserID = userID

	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key != "" && h.Idempotency != nil {
		replayed, err := h.claimIdempotency(r.Context(), userID, key)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if replayed != nil {
			h.respond(w, http.StatusOK, "Checkout already processed", replayed)
			return
		}
	}

	tx, err := h.Checkout.Checkout(r.Context(), req)
	if err != nil {
		if key != "" && h.Idempotency != nil {
			if relErr := h.Idempotency.Release(context.WithoutCancel(r.Context()), userID, key); relErr != nil {
				h.Logger.Warn("API", fmt.Sprintf("Release idempotency key for %s: %v", userID, relErr))
			}
		}
		h.fail(w, r, err)
		return
	}

	if key != "" && h.Idempotency != nil {
		if err := h.Idempotency.Complete(context.WithoutCancel(r.Context()), userID, key, tx.ID); err != nil {
			h.Logger.Warn("API", fmt.Sprintf("Store idempotency key for %s: %v", userID, err))
		}
	}
	h.respond(w, http.StatusCreated, "Checkout successful", tx)
}

// claimIdempotency returns the earlier transaction when key was already used.
func (h *Handler) claimIdempotency(ctx context.Context, userID, key string) (*models.Transaction, error) {
	ok, existing, err := h.Idempotency.Claim(ctx, userID, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}
	if existing == "" {
		return nil, apperrors.ErrDuplicateRequest
	}
	return h.Checkout.TransactionForOwner(ctx, userID, existing)
}

// CheckoutInfo handles GET /api/transactions/checkout-info?eventId=
func (h *Handler) CheckoutInfo(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("eventId")
	if eventID == "" {
		h.fail(w, r, fmt.Errorf("%w: eventId is required", apperrors.ErrInvalidInput))
		return
	}
	userID := auth.UserID(r.Context())
	now := h.now()

	event, err := h.Events.GetByID(r.Context(), eventID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	points, err := h.Wallet.Points(r.Context(), userID, now)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	coupons, err := h.Wallet.Coupons(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	vouchers, err := h.Wallet.EventVouchers(r.Context(), eventID, now)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	redeemable := make([]models.Coupon, 0, len(coupons))
	for _, c := range coupons {
		if c.Redeemable(now) {
			redeemable = append(redeemable, c)
		}
	}

	h.respond(w, http.StatusOK, "Checkout info", map[string]interface{}{
		"event":    event,
		"points":   points,
		"coupons":  redeemable,
		"vouchers": vouchers,
	})
}

// MyTransactions handles GET /api/transactions/me
func (h *Handler) MyTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Checkout.TransactionsForUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Transactions", txs)
}

// UploadPaymentProof handles POST /api/transactions/{id}/payment-proof
func (h *Handler) UploadPaymentProof(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxUploadSize
	if limit <= 0 {
		limit = 5 << 20
	}
	// room for the multipart envelope around the file
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, fmt.Errorf("%w: payment proof exceeds %d bytes", apperrors.ErrInvalidInput, limit))
			return
		}
		h.fail(w, r, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(proofField)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %s file is required", apperrors.ErrInvalidInput, proofField))
		return
	}
	defer file.Close()

	if header.Size > limit {
		h.fail(w, r, fmt.Errorf("%w: payment proof exceeds %d bytes", apperrors.ErrInvalidInput, limit))
		return
	}

	tx, err := h.Checkout.UploadProof(r.Context(), checkout.UploadProofRequest{
		TransactionID: chi.URLParam(r, "id"),
		UserID:        auth.UserID(r.Context()),
		FileName:      header.Filename,
		ContentType:   header.Header.Get("Content-Type"),
		Size:          header.Size,
		Body:          file,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Payment proof uploaded", tx)
}

// PendingTransactions handles GET /api/transactions/pending
func (h *Handler) PendingTransactions(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.PrincipalFrom(r.Context())
	txs, err := h.Checkout.PendingForOrganizer(r.Context(), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Pending transactions", txs)
}

type settleBody struct {
	Status models.TransactionStatus `json:"status"`
}

// SettleTransaction handles PATCH /api/transactions/{id}/status
func (h *Handler) SettleTransaction(w http.ResponseWriter, r *http.Request) {
	var body settleBody
	if err := decodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	actor, _ := auth.PrincipalFrom(r.Context())

	tx, err := h.Checkout.Settle(r.Context(), checkout.SettleRequest{
		TransactionID: chi.URLParam(r, "id"),
		Actor:         actor,
		Decision:      body.Status,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, fmt.Sprintf("Transaction %s", strings.ToLower(string(tx.Status))), tx)
}

// TicketQR handles GET /api/transactions/{id}/ticket and returns a PNG.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	png, err := h.Tickets.TicketQR(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
