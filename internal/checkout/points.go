package checkout

import (
	"context"
	"fmt"
	"time"

	"ms-checkout/internal/apperrors"
	"ms-checkout/internal/models"
	"ms-checkout/internal/utils"

	"github.com/google/uuid"
)

// RefundValidityMonths is how long a refunded point record stays spendable.
const RefundValidityMonths = 3

type PointStore interface {
	ListActivePoints(ctx context.Context, userID string, now time.Time) ([]models.Point, error)
	CreatePoint(ctx context.Context, point *models.Point) error
	UpdatePointAmount(ctx context.Context, id string, amount int64) error
	DeletePoint(ctx context.Context, id string) error
}

// PointDeduction is what one record gave up during a deduction.
type PointDeduction struct {
	PointID   string `json:"point_id"`
	Deducted  int64  `json:"deducted"`
	Remaining int64  `json:"remaining"`
}

// DeductPoints spends amount from the user's records, soonest expiry first.
// Records that reach zero are deleted. Nothing is touched unless the whole amount is available.
func DeductPoints(ctx context.Context, s PointStore, userID string, amount int64, now time.Time) ([]PointDeduction, error) {
	if amount <= 0 {
		return nil, nil
	}

	records, err := s.ListActivePoints(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list points: %w", err)
	}

	var available int64
	for _, p := range records {
		available += p.Amount
	}
	if available < amount {
		return nil, fmt.Errorf("%w: %d requested, %d available", apperrors.ErrInsufficientPoints, amount, available)
	}

	remaining := amount
	deductions := make([]PointDeduction, 0, len(records))
	for _, p := range records {
		if remaining == 0 {
			break
		}
		take := min(remaining, p.Amount)
		left := p.Amount - take

		if left == 0 {
			err = s.DeletePoint(ctx, p.ID)
		} else {
			err = s.UpdatePointAmount(ctx, p.ID, left)
		}
		if err != nil {
			return nil, fmt.Errorf("deduct point %s: %w", p.ID, err)
		}

		deductions = append(deductions, PointDeduction{PointID: p.ID, Deducted: take, Remaining: left})
		remaining -= take
	}

	return deductions, nil
}

// RefundPoints mints a fresh REFUND record. The records consumed at checkout stay gone.
func RefundPoints(ctx context.Context, s PointStore, userID string, amount int64, now time.Time) (*models.Point, error) {
	point := &models.Point{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Source:    models.PointSourceRefund,
		ExpiredAt: utils.MonthsFrom(now, RefundValidityMonths),
		CreatedAt: now,
	}
	if err := s.CreatePoint(ctx, point); err != nil {
		return nil, fmt.Errorf("create refund point: %w", err)
	}
	return point, nil
}

// Balance sums the user's spendable records at now.
func Balance(ctx context.Context, s PointStore, userID string, now time.Time) (models.PointBalance, error) {
	records, err := s.ListActivePoints(ctx, userID, now)
	if err != nil {
		return models.PointBalance{}, fmt.Errorf("list points: %w", err)
	}
	balance := models.PointBalance{Records: records}
	for _, p := range records {
		balance.Total += p.Amount
	}
	return balance, nil
}
