package checkout_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"ms-checkout/internal/apperrors"
	"ms-checkout/internal/checkout"
	"ms-checkout/internal/ledger"
	"ms-checkout/internal/ledger/ledgertest"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock implementations
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishTransaction(ctx context.Context, event models.TransactionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) EmitTransaction(event models.TransactionEvent) {
	m.Called(event)
}

type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	args := m.Called(ctx, key, body, size, contentType)
	return args.String(0), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Invalidate(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

type fixture struct {
	db        *ledger.DB
	svc       *checkout.Service
	publisher *MockPublisher
	notifier  *MockNotifier
	store     *MockObjectStore
	cache     *MockCache
}

func setupService(t *testing.T) *fixture {
	db, _ := ledgertest.Open(t)

	f := &fixture{
		db:        db,
		publisher: new(MockPublisher),
		notifier:  new(MockNotifier),
		store:     new(MockObjectStore),
		cache:     new(MockCache),
	}
	f.publisher.On("PublishTransaction", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("EmitTransaction", mock.Anything).Return()
	f.cache.On("Invalidate", mock.Anything, mock.Anything).Return(nil)

	f.svc = checkout.NewService(db, f.store, f.publisher, f.notifier, logger.NewWithWriter(io.Discard))
	f.svc.Cache = f.cache
	f.svc.Now = func() time.Time { return ledgertest.Now }
	return f
}

func (f *fixture) remainingSeats(t *testing.T, eventID string) int {
	t.Helper()
	event, err := f.db.GetEvent(context.Background(), eventID)
	require.NoError(t, err)
	return event.RemainingSeats
}

// awaitingConfirmation checks out and uploads a proof so the transaction is ready to settle.
func (f *fixture) awaitingConfirmation(t *testing.T, req checkout.CheckoutRequest) *models.Transaction {
	t.Helper()
	ctx := context.Background()

	tx, err := f.svc.Checkout(ctx, req)
	require.NoError(t, err)

	f.store.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, "image/png").
		Return("https://cdn.example.com/proof.png", nil).Once()

	tx, err = f.svc.UploadProof(ctx, checkout.UploadProofRequest{
		TransactionID: tx.ID,
		UserID:        req.UserID,
		FileName:      "proof.png",
		ContentType:   "image/png",
		Size:          4,
		Body:          bytes.NewReader([]byte("data")),
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusWaitingForAdminConfirmation, tx.Status)
	return tx
}

func organizer(id string) models.Principal {
	return models.Principal{UserID: id, Role: models.RoleOrganizer}
}

func TestCheckoutTakesLastSeats(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	event := ledgertest.SeedEvent(t, f.db, "org-1", 5, 1000)

	tx, err := f.svc.Checkout(ctx, checkout.CheckoutRequest{UserID: "user-1", EventID: event.ID, TicketQuantity: 5})
	require.NoError(t, err)

	assert.Equal(t, models.StatusWaitingForPayment, tx.Status)
	assert.True(t, tx.TotalPrice.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, int64(0), tx.UsedPoint)
	assert.Equal(t, 0, f.remainingSeats(t, event.ID))

	stored, err := f.db.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.TicketQuantity)

	f.publisher.AssertCalled(t, "PublishTransaction", mock.Anything, mock.MatchedBy(func(e models.TransactionEvent) bool {
		return e.TransactionID == tx.ID && e.OrganizerID == "org-1" && e.Status == models.StatusWaitingForPayment
	}))
	f.cache.AssertCalled(t, "Invalidate", mock.Anything, event.ID)
	f.notifier.AssertNumberOfCalls(t, "EmitTransaction", 1)
}

func TestCheckoutInsufficientSeatsCreatesNothing(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	event := ledgertest.SeedEvent(t, f.db, "org-1", 2, 1000)

	tx, err := f.svc.Checkout(ctx, checkout.CheckoutRequest{UserID: "user-1", EventID: event.ID, TicketQuantity: 3})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientSeats)
	assert.Nil(t, tx)

	assert.Equal(t, 2, f.remainingSeats(t, event.ID))
	txs, err := f.db.ListTransactionsByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, txs)
	f.publisher.AssertNotCalled(t, "PublishTransaction", mock.Anything, mock.Anything)
}

func TestCheckoutValidation(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	event := ledgertest.SeedEvent(t, f.db, "org-1", 2, 1000)

	_, err := f.svc.Checkout(ctx, checkout.CheckoutRequest{UserID: "user-1", EventID: "missing", TicketQuantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrEventNotFound)

	_, err = f.svc.Checkout(ctx, checkout.CheckoutRequest{UserID: "user-1", EventID: event.ID, TicketQuantity: 0})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.svc.Checkout(ctx, checkout.CheckoutRequest{EventID: event.ID, TicketQuantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = f.svc.Checkout(ctx, checkout.CheckoutRequest{UserID: "user-1", EventID: event.ID, TicketQuantity: 1, VoucherCode: "NOPE"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidVoucher)

	assert.Equal(t, 2, f.remainingSeats(t, event.ID))
}

func TestCheckoutSpendsPointsSoonestExpiryFirst(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	now := ledgertest.Now
	event := ledgertest.SeedEvent(t, f.db, "org-1", 5, 1000)

	first := ledgertest.SeedPoint(t, f.db, "user-1", 50, now.Add(24*time.Hour))
	second := ledgertest.SeedPoint(t, f.db, "user-1", 100, now.Add(48*time.Hour))

	tx, err := f.svc.Checkout(ctx, checkout.CheckoutRequest{UserID: "user-1", EventID: event.ID, TicketQuantity: 1, Points: 70})
	require.NoError(t, err)

	assert.Equal(t, int64(70), tx.UsedPoint)
	assert.True(t, tx.TotalPrice.Equal(decimal.NewFromInt(930)))

	left, err := f.db.ListActivePoints(ctx, "user-1", now)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.NotEqual(t, first.ID, left[0].ID)
	assert.Equal(t, second.ID, left[0].ID)
	assert.Equal(t, int64(80), left[0].Amount)
}

func TestCheckoutPercentageVoucher(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	event := ledgertest.SeedEvent(t, f.db, "org-1", 5, 1000)
	voucher := ledgertest.SeedVoucher(t, f.db, event.ID, "EARLY10", 10, models.DiscountPercentage)

	tx, err := f.svc.Checkout(ctx, checkout.CheckoutRequest{UserID: "user-1", EventID: event.ID, TicketQuantity: 1, VoucherCode: "EARLY10"})
	require.NoError(t, err)

	assert.True(t, tx.TotalPrice.Equal(decimal.NewFromInt(900)))
	require.NotNil(t, tx.UsedVoucherID)
	assert.Equal(t, voucher.ID, *tx.UsedVoucherID)
	assert.Nil(t, tx.UsedCouponID)
}

func TestCheckoutCouponIsSingleUse(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	event := ledgertest.SeedEvent(t, f.db, "org-1", 5, 1000)
	ledgertest.SeedCoupon(t, f.db, "user-1", "WELCOME1", 100, ledgertest.Now.Add(time.Hour))

	req := checkout.CheckoutRequest{UserID: "user-1", EventID: event.ID, TicketQuantity: 1, CouponCode: "WELCOME1"}

	tx, err := f.svc.Checkout(ctx, req)
	require.NoError(t, err)
	assert.True(t, tx.TotalPrice.Equal(decimal.NewFromInt(900)))

	coupon, err := f.db.GetCouponByCode(ctx, "WELCOME1", "user-1")
	require.NoError(t, err)
	assert.True(t, coupon.IsUsed)

	_, err = f.svc.Checkout(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCoupon)
	assert.Equal(t, 4, f.remainingSeats(t, event.ID))
}

func TestCheckoutLateFailureRollsBackEverything(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	now := ledgertest.Now
	event := ledgertest.SeedEvent(t, f.db, "org-1", 5, 1000)
	point := ledgertest.SeedPoint(t, f.db, "user-1", 50, now.Add(24*time.Hour))
	ledgertest.SeedCoupon(t, f.db, "user-1", "WELCOME1", 100, now.Add(time.Hour))

	// coupon consumption is the last step of the unit; make it fail after seats,
	// the transaction row and the points were already written
	_, err := f.db.Bun.NewRaw(`CREATE TRIGGER coupons_read_only BEFORE UPDATE ON coupons
		BEGIN SELECT RAISE(ABORT, 'coupons are read-only'); END`).Exec(ctx)
	require.NoError(t, err)

	tx, err := f.svc.Checkout(ctx, checkout.CheckoutRequest{
		UserID:         "user-1",
		EventID:        event.ID,
		TicketQuantity: 2,
		CouponCode:     "WELCOME1",
		Points:         50,
	})
	require.Error(t, err)
	assert.Nil(t, tx)

	assert.Equal(t, 5, f.remainingSeats(t, event.ID))

	txs, err := f.db.ListTransactionsByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, txs)

	points, err := f.db.ListActivePoints(ctx, "user-1", now)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, point.ID, points[0].ID)
	assert.Equal(t, int64(50), points[0].Amount)

	coupon, err := f.db.GetCouponByCode(ctx, "WELCOME1", "user-1")
	require.NoError(t, err)
	assert.False(t, coupon.IsUsed)

	f.publisher.AssertNotCalled(t, "PublishTransaction", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "EmitTransaction", mock.Anything)
	f.cache.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
}

func TestUploadProof(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	event := ledgertest.SeedEvent(t, f.db, "org-1", 5, 1000)

	tx, err := f.svc.Checkout(ctx, checkout.CheckoutRequest{UserID: "user-1", EventID: event.ID, TicketQuantity: 1})
	require.NoError(t, err)

	upload := func(userID, contentType string) (*models.Transaction, error) {
		return f.svc.UploadProof(ctx, checkout.UploadProofRequest{
			TransactionID: tx.ID,
			UserID:        userID,
			FileName:      "proof.jpg",
			ContentType:   contentType,
			Size:          4,
			Body:          bytes.NewReader([]byte("data")),
		})
	}

	_, err = upload("user-2", "image/jpeg")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = upload("user-1", "application/pdf")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	f.store.On("Upload", mock.Anything, mock.Anything, mock.Anything, int64(4), "image/jpeg").
		Return("", errors.New("bucket unavailable")).Once()
	_, err = upload("user-1", "image/jpeg")
	assert.Error(t, err)

	stored, err := f.db.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitingForPayment, stored.Status)

	f.store.On("Upload", mock.Anything, mock.Anything, mock.Anything, int64(4), "image/jpeg").
		Return("https://cdn.example.com/p.jpg", nil).Once()
	updated, err := upload("user-1", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitingForAdminConfirmation, updated.Status)
	require.NotNil(t, updated.PaymentProof)
	assert.Equal(t, "https://cdn.example.com/p.jpg", *updated.PaymentProof)

	_, err = upload("user-1", "image/jpeg")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestUploadProofTooLarge(t *testing.T) {
	f := setupService(t)
	f.svc.MaxProofSize = 3

	_, err := f.svc.UploadProof(context.Background(), checkout.UploadProofRequest{
		TransactionID: "any",
		UserID:        "user-1",
		ContentType:   "image/png",
		Size:          4,
		Body:          bytes.NewReader([]byte("data")),
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	f.store.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSettleRejectedRestoresSeatsAndRefundsPoints(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	now := ledgertest.Now
	event := ledgertest.SeedEvent(t, f.db, "org-1", 10, 1000)
	ledgertest.SeedPoint(t, f.db, "user-1", 200, now.Add(24*time.Hour))

	tx := f.awaitingConfirmation(t, checkout.CheckoutRequest{UserID: "user-1", EventID: event.ID, TicketQuantity: 3, Points: 200})
	require.Equal(t, int64(200), tx.UsedPoint)
	require.Equal(t, 7, f.remainingSeats(t, event.ID))

	settledAt := now.Add(2 * time.Hour)
	f.svc.Now = func() time.Time { return settledAt }

	settled, err := f.svc.Settle(ctx, checkout.SettleRequest{TransactionID: tx.ID, Actor: organizer("org-1"), Decision: models.StatusRejected})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, settled.Status)
	assert.Equal(t, 10, f.remainingSeats(t, event.ID))

	points, err := f.db.ListActivePoints(ctx, "user-1", settledAt)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, int64(200), points[0].Amount)
	assert.Equal(t, models.PointSourceRefund, points[0].Source)
	assert.True(t, points[0].ExpiredAt.Equal(settledAt.AddDate(0, 3, 0)))
}

func TestSettleDoneKeepsSeatsAndIsTerminal(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	event := ledgertest.SeedEvent(t, f.db, "org-1", 5, 1000)

	tx := f.awaitingConfirmation(t, checkout.CheckoutRequest{UserID: "user-1", EventID: event.ID, TicketQuantity: 2})

	settled, err := f.svc.Settle(ctx, checkout.SettleRequest{TransactionID: tx.ID, Actor: organizer("org-1"), Decision: models.StatusDone})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, settled.Status)
	assert.Equal(t, 3, f.remainingSeats(t, event.ID))

	for _, decision := range []models.TransactionStatus{models.StatusDone, models.StatusRejected} {
		_, err = f.svc.Settle(ctx, checkout.SettleRequest{TransactionID: tx.ID, Actor: organizer("org-1"), Decision: decision})
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	}

	assert.Equal(t, 3, f.remainingSeats(t, event.ID))
	stored, err := f.db.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, stored.Status)
}

func TestSettleGuards(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	event := ledgertest.SeedEvent(t, f.db, "org-1", 5, 1000)

	unpaid, err := f.svc.Checkout(ctx, checkout.CheckoutRequest{UserID: "user-1", EventID: event.ID, TicketQuantity: 1})
	require.NoError(t, err)

	_, err = f.svc.Settle(ctx, checkout.SettleRequest{TransactionID: unpaid.ID, Actor: organizer("org-1"), Decision: models.StatusDone})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	_, err = f.svc.Settle(ctx, checkout.SettleRequest{TransactionID: unpaid.ID, Actor: organizer("org-2"), Decision: models.StatusDone})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	attendee := models.Principal{UserID: "org-1", Role: models.RoleAttendee}
	_, err = f.svc.Settle(ctx, checkout.SettleRequest{TransactionID: unpaid.ID, Actor: attendee, Decision: models.StatusDone})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.svc.Settle(ctx, checkout.SettleRequest{TransactionID: unpaid.ID, Actor: organizer("org-1"), Decision: models.StatusWaitingForPayment})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.svc.Settle(ctx, checkout.SettleRequest{TransactionID: "missing", Actor: organizer("org-1"), Decision: models.StatusDone})
	assert.ErrorIs(t, err, apperrors.ErrTransactionNotFound)
}

func TestPublishFailureDoesNotFailCheckout(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	event := ledgertest.SeedEvent(t, f.db, "org-1", 5, 1000)

	f.publisher.ExpectedCalls = nil
	f.publisher.On("PublishTransaction", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	tx, err := f.svc.Checkout(ctx, checkout.CheckoutRequest{UserID: "user-1", EventID: event.ID, TicketQuantity: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, 4, f.remainingSeats(t, event.ID))
}

func TestPendingForOrganizer(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	event := ledgertest.SeedEvent(t, f.db, "org-1", 5, 1000)

	tx := f.awaitingConfirmation(t, checkout.CheckoutRequest{UserID: "user-1", EventID: event.ID, TicketQuantity: 1})

	pending, err := f.svc.PendingForOrganizer(ctx, organizer("org-1"))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, tx.ID, pending[0].ID)

	_, err = f.svc.PendingForOrganizer(ctx, models.Principal{UserID: "user-1", Role: models.RoleAttendee})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.svc.TransactionForOwner(ctx, "user-2", tx.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}
