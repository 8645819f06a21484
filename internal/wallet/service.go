// Package wallet exposes a user's spendable instruments: points, coupons and
// the vouchers an event currently offers.
package wallet

import (
	"context"
	"fmt"
	"time"

	"ms-checkout/internal/checkout"
	"ms-checkout/internal/models"
)

type Store interface {
	checkout.PointStore
	ListCoupons(ctx context.Context, userID string) ([]models.Coupon, error)
	ListVouchersByEvent(ctx context.Context, eventID string) ([]models.Voucher, error)
}

type Service struct {
	Store Store
}

func NewService(store Store) *Service {
	return &Service{Store: store}
}

// Points returns the user's active records and their total.
func (s *Service) Points(ctx context.Context, userID string, now time.Time) (models.PointBalance, error) {
	return checkout.Balance(ctx, s.Store, userID, now)
}

func (s *Service) Coupons(ctx context.Context, userID string) ([]models.Coupon, error) {
	coupons, err := s.Store.ListCoupons(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	return coupons, nil
}

// EventVouchers lists the vouchers of an event that can be applied at now.
func (s *Service) EventVouchers(ctx context.Context, eventID string, now time.Time) ([]models.Voucher, error) {
	vouchers, err := s.Store.ListVouchersByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}

	active := make([]models.Voucher, 0, len(vouchers))
	for _, v := range vouchers {
		if v.ActiveAt(now) {
			active = append(active, v)
		}
	}
	return active, nil
}
