package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-checkout/internal/apperrors"
	"ms-checkout/internal/ledger"
	"ms-checkout/internal/models"
)

type InstrumentReader interface {
	GetVoucherByCode(ctx context.Context, code, eventID string) (*models.Voucher, error)
	GetCouponByCode(ctx context.Context, code, userID string) (*models.Coupon, error)
}

// InstrumentRequest names the codes a buyer typed. Empty means not requested.
type InstrumentRequest struct {
	EventID     string
	UserID      string
	VoucherCode string
	CouponCode  string
}

type Instruments struct {
	Voucher *models.Voucher
	Coupon  *models.Coupon
}

// ResolveInstruments looks up the requested voucher and coupon and checks they
// can be applied at now. It never mutates anything.
func ResolveInstruments(ctx context.Context, r InstrumentReader, req InstrumentRequest, now time.Time) (Instruments, error) {
	var out Instruments

	if req.VoucherCode != "" {
		v, err := r.GetVoucherByCode(ctx, req.VoucherCode, req.EventID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return Instruments{}, fmt.Errorf("%w: %s", apperrors.ErrInvalidVoucher, req.VoucherCode)
			}
			return Instruments{}, fmt.Errorf("load voucher: %w", err)
		}
		if !v.ActiveAt(now) {
			return Instruments{}, fmt.Errorf("%w: %s is not active", apperrors.ErrInvalidVoucher, req.VoucherCode)
		}
		out.Voucher = v
	}

	if req.CouponCode != "" {
		c, err := r.GetCouponByCode(ctx, req.CouponCode, req.UserID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return Instruments{}, fmt.Errorf("%w: %s", apperrors.ErrInvalidCoupon, req.CouponCode)
			}
			return Instruments{}, fmt.Errorf("load coupon: %w", err)
		}
		if !c.Redeemable(now) {
			return Instruments{}, fmt.Errorf("%w: %s is used or expired", apperrors.ErrInvalidCoupon, req.CouponCode)
		}
		out.Coupon = c
	}

	return out, nil
}
