package apperrors

import (
	"errors"
	"net/http"
)

var (
	ErrEventNotFound       = errors.New("event not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInsufficientSeats   = errors.New("not enough seats left")
	ErrInvalidVoucher      = errors.New("invalid voucher")
	ErrInvalidCoupon       = errors.New("invalid coupon")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrInvalidState        = errors.New("invalid transaction state")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidInput        = errors.New("invalid input")
	ErrDuplicateRequest    = errors.New("duplicate request")
)

type kind struct {
	err     error
	status  int
	message string
}

// Order matters only for wrapped chains that carry more than one kind.
var kinds = []kind{
	{ErrEventNotFound, http.StatusNotFound, "Event not found"},
	{ErrTransactionNotFound, http.StatusNotFound, "Transaction not found"},
	{ErrInsufficientSeats, http.StatusConflict, "Not enough seats left"},
	{ErrInvalidVoucher, http.StatusBadRequest, "Voucher is invalid or expired"},
	{ErrInvalidCoupon, http.StatusBadRequest, "Coupon is invalid, used or expired"},
	{ErrInsufficientPoints, http.StatusBadRequest, "Not enough points"},
	{ErrInvalidState, http.StatusConflict, "Transaction is not in a valid state for this action"},
	{ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{ErrForbidden, http.StatusForbidden, "Forbidden"},
	{ErrInvalidInput, http.StatusBadRequest, "Invalid request"},
	{ErrDuplicateRequest, http.StatusConflict, "Request is already being processed"},
}

// HTTPStatus maps an error onto the response status code. Unknown errors are 500.
func HTTPStatus(err error) int {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the stable client-facing message for err. Unknown errors
// get a generic message so internal details never reach the client.
func PublicMessage(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.message
		}
	}
	return "Internal server error"
}

// Code returns a short machine-readable identifier for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrEventNotFound):
		return "EVENT_NOT_FOUND"
	case errors.Is(err, ErrTransactionNotFound):
		return "TRANSACTION_NOT_FOUND"
	case errors.Is(err, ErrInsufficientSeats):
		return "INSUFFICIENT_SEATS"
	case errors.Is(err, ErrInvalidVoucher):
		return "INVALID_VOUCHER"
	case errors.Is(err, ErrInvalidCoupon):
		return "INVALID_COUPON"
	case errors.Is(err, ErrInsufficientPoints):
		return "INSUFFICIENT_POINTS"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrDuplicateRequest):
		return "DUPLICATE_REQUEST"
	default:
		return "INTERNAL"
	}
}
