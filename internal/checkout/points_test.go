package checkout_test

import (
	"context"
	"testing"
	"time"

	"ms-checkout/internal/apperrors"
	"ms-checkout/internal/checkout"
	"ms-checkout/internal/ledger/ledgertest"
	"ms-checkout/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeductPointsSoonestExpiryFirst(t *testing.T) {
	db, _ := ledgertest.Open(t)
	ctx := context.Background()
	now := ledgertest.Now

	first := ledgertest.SeedPoint(t, db, "user-1", 50, now.Add(24*time.Hour))
	second := ledgertest.SeedPoint(t, db, "user-1", 100, now.Add(48*time.Hour))

	deductions, err := checkout.DeductPoints(ctx, db, "user-1", 70, now)
	require.NoError(t, err)
	require.Len(t, deductions, 2)
	assert.Equal(t, checkout.PointDeduction{PointID: first.ID, Deducted: 50, Remaining: 0}, deductions[0])
	assert.Equal(t, checkout.PointDeduction{PointID: second.ID, Deducted: 20, Remaining: 80}, deductions[1])

	left, err := db.ListActivePoints(ctx, "user-1", now)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, second.ID, left[0].ID)
	assert.Equal(t, int64(80), left[0].Amount)
}

func TestDeductPointsInsufficientTouchesNothing(t *testing.T) {
	db, _ := ledgertest.Open(t)
	ctx := context.Background()
	now := ledgertest.Now

	ledgertest.SeedPoint(t, db, "user-1", 50, now.Add(24*time.Hour))
	ledgertest.SeedPoint(t, db, "user-1", 40, now.Add(-time.Hour))

	_, err := checkout.DeductPoints(ctx, db, "user-1", 60, now)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPoints)

	balance, err := checkout.Balance(ctx, db, "user-1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance.Total)
}

func TestRefundPointsMintsNewRecord(t *testing.T) {
	db, _ := ledgertest.Open(t)
	ctx := context.Background()
	now := ledgertest.Now

	point, err := checkout.RefundPoints(ctx, db, "user-1", 200, now)
	require.NoError(t, err)
	assert.Equal(t, models.PointSourceRefund, point.Source)
	assert.True(t, point.ExpiredAt.Equal(now.AddDate(0, 3, 0)))

	balance, err := checkout.Balance(ctx, db, "user-1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(200), balance.Total)
}
