package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-checkout/internal/analytics"
	"ms-checkout/internal/apperrors"
	"ms-checkout/internal/checkout"
	"ms-checkout/internal/events"
	"ms-checkout/internal/idempotency"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/observability"
	"ms-checkout/internal/sse"
	"ms-checkout/internal/tickets"
	"ms-checkout/internal/utils"
	"ms-checkout/internal/wallet"
)

// Handler serves the HTTP surface. Idempotency and Metrics are optional.
type Handler struct {
	Checkout    *checkout.Service
	Events      *events.EventService
	Wallet      *wallet.Service
	Analytics   *analytics.Service
	Tickets     *tickets.TicketService
	Emitter     *sse.TransactionEventEmitter
	Idempotency *idempotency.Store
	Metrics     *observability.Metrics
	Logger      *logger.Logger
	Now         func() time.Time

	// MaxUploadSize caps the multipart body of a payment proof upload.
	MaxUploadSize int64
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *Handler) respond(w http.ResponseWriter, status int, message string, data interface{}) {
	utils.WriteJSON(w, status, utils.SuccessResponse(message, data))
}

// fail maps err onto its public status and message. Internal errors are logged
// and never leak their text.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
	} else {
		h.Logger.Debug("API", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
	}
	utils.WriteJSON(w, status, utils.ErrorResponse(apperrors.PublicMessage(err), apperrors.Code(err)))
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	return nil
}
