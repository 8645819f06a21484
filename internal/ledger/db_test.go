package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-checkout/internal/ledger"
	"ms-checkout/internal/ledger/ledgertest"
	"ms-checkout/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEvent(t *testing.T) {
	db, _ := ledgertest.Open(t)
	ctx := context.Background()

	event := ledgertest.SeedEvent(t, db, "org-1", 5, 1000)

	got, err := db.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jazz Night", got.Name)
	assert.Equal(t, 5, got.RemainingSeats)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(1000)))

	_, err = db.GetEvent(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestDecrementSeatsGuard(t *testing.T) {
	db, _ := ledgertest.Open(t)
	ctx := context.Background()

	event := ledgertest.SeedEvent(t, db, "org-1", 2, 1000)

	ok, err := db.DecrementSeats(ctx, event.ID, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = db.DecrementSeats(ctx, event.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := db.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RemainingSeats)

	require.NoError(t, db.IncrementSeats(ctx, event.ID, 1))
	got, err = db.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RemainingSeats)

	assert.ErrorIs(t, db.IncrementSeats(ctx, "missing", 1), ledger.ErrNotFound)
}

func TestRunAtomicRollsBack(t *testing.T) {
	db, _ := ledgertest.Open(t)
	ctx := context.Background()

	event := ledgertest.SeedEvent(t, db, "org-1", 5, 1000)
	boom := errors.New("boom")

	err := db.RunAtomic(ctx, func(ctx context.Context, tx *ledger.DB) error {
		ok, err := tx.DecrementSeats(ctx, event.ID, 5)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := db.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.RemainingSeats)
}

func TestRunAtomicNestedJoinsOuter(t *testing.T) {
	db, _ := ledgertest.Open(t)
	ctx := context.Background()

	event := ledgertest.SeedEvent(t, db, "org-1", 5, 1000)

	err := db.RunAtomic(ctx, func(ctx context.Context, tx *ledger.DB) error {
		return tx.RunAtomic(ctx, func(ctx context.Context, inner *ledger.DB) error {
			_, err := inner.DecrementSeats(ctx, event.ID, 1)
			return err
		})
	})
	require.NoError(t, err)

	got, err := db.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.RemainingSeats)
}

func TestTransactionStatusTransition(t *testing.T) {
	db, _ := ledgertest.Open(t)
	ctx := context.Background()

	event := ledgertest.SeedEvent(t, db, "org-1", 5, 1000)
	tx := &models.Transaction{
		ID:             uuid.NewString(),
		UserID:         "user-1",
		EventID:        event.ID,
		TicketQuantity: 1,
		Price:          decimal.NewFromInt(1000),
		TotalPrice:     decimal.NewFromInt(1000),
		Status:         models.StatusWaitingForPayment,
		CreatedAt:      ledgertest.Now,
		UpdatedAt:      ledgertest.Now,
	}
	require.NoError(t, db.CreateTransaction(ctx, tx))

	proof := "https://cdn.example.com/proof.png"
	tx.Status = models.StatusWaitingForAdminConfirmation
	tx.PaymentProof = &proof
	tx.UpdatedAt = ledgertest.Now.Add(time.Minute)

	ok, err := db.UpdateTransactionStatus(ctx, tx, models.StatusWaitingForPayment)
	require.NoError(t, err)
	assert.True(t, ok)

	// second writer expecting the old status loses
	ok, err = db.UpdateTransactionStatus(ctx, tx, models.StatusWaitingForPayment)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := db.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitingForAdminConfirmation, got.Status)
	require.NotNil(t, got.PaymentProof)
	assert.Equal(t, proof, *got.PaymentProof)

	pending, err := db.ListTransactionsForOrganizer(ctx, "org-1", models.StatusWaitingForAdminConfirmation)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Jazz Night", pending[0].EventName)

	none, err := db.ListTransactionsForOrganizer(ctx, "org-2", models.StatusWaitingForAdminConfirmation)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListActivePointsOrdersByExpiry(t *testing.T) {
	db, _ := ledgertest.Open(t)
	ctx := context.Background()
	now := ledgertest.Now

	late := ledgertest.SeedPoint(t, db, "user-1", 100, now.Add(48*time.Hour))
	early := ledgertest.SeedPoint(t, db, "user-1", 50, now.Add(24*time.Hour))
	ledgertest.SeedPoint(t, db, "user-1", 70, now.Add(-time.Hour))
	ledgertest.SeedPoint(t, db, "user-2", 500, now.Add(24*time.Hour))

	points, err := db.ListActivePoints(ctx, "user-1", now)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, early.ID, points[0].ID)
	assert.Equal(t, late.ID, points[1].ID)

	expired, err := db.ExpirePoints(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)
}

func TestMarkCouponUsedOnce(t *testing.T) {
	db, _ := ledgertest.Open(t)
	ctx := context.Background()

	coupon := ledgertest.SeedCoupon(t, db, "user-1", "WELCOME1", 100, ledgertest.Now.Add(time.Hour))

	ok, err := db.MarkCouponUsed(ctx, coupon.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.MarkCouponUsed(ctx, coupon.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = db.GetCouponByCode(ctx, "WELCOME1", "user-2")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestGetVoucherByCodeScopedToEvent(t *testing.T) {
	db, _ := ledgertest.Open(t)
	ctx := context.Background()

	event := ledgertest.SeedEvent(t, db, "org-1", 5, 1000)
	ledgertest.SeedVoucher(t, db, event.ID, "EARLY10", 10, models.DiscountPercentage)

	v, err := db.GetVoucherByCode(ctx, "EARLY10", event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DiscountPercentage, v.DiscountType)

	_, err = db.GetVoucherByCode(ctx, "EARLY10", "other-event")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	vouchers, err := db.ListVouchersByEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Len(t, vouchers, 1)
}

func TestUpdateEventKeepsSeatsSoldAfterRead(t *testing.T) {
	db, _ := ledgertest.Open(t)
	ctx := context.Background()

	event := ledgertest.SeedEvent(t, db, "org-1", 5, 1000)
	stale, err := db.GetEvent(ctx, event.ID)
	require.NoError(t, err)

	// a checkout commits between the organizer's read and write
	ok, err := db.DecrementSeats(ctx, event.ID, 2)
	require.NoError(t, err)
	require.True(t, ok)

	stale.Name = "Renamed"
	require.NoError(t, db.UpdateEvent(ctx, stale))

	got, err := db.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, 5, got.TotalSeats)
	assert.Equal(t, 3, got.RemainingSeats)
}

func TestResizeEventIsRelative(t *testing.T) {
	db, _ := ledgertest.Open(t)
	ctx := context.Background()

	event := ledgertest.SeedEvent(t, db, "org-1", 10, 1000)
	ok, err := db.DecrementSeats(ctx, event.ID, 4)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = db.ResizeEvent(ctx, event.ID, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = db.ResizeEvent(ctx, event.ID, 12)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := db.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, got.TotalSeats)
	assert.Equal(t, 8, got.RemainingSeats)

	locked, err := db.GetEventForUpdate(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, locked.RemainingSeats)

	_, err = db.GetEventForUpdate(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
