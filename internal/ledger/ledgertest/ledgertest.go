// Package ledgertest spins up an in-memory SQLite ledger for package tests.
package ledgertest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-checkout/internal/ledger"
	"ms-checkout/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Open returns a ledger backed by a fresh in-memory database with every table created.
func Open(t *testing.T) (*ledger.DB, *bun.DB) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	// one connection keeps the in-memory schema visible to every query
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	for _, model := range []interface{}{
		(*models.Event)(nil),
		(*models.Transaction)(nil),
		(*models.Point)(nil),
		(*models.Coupon)(nil),
		(*models.Voucher)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(context.Background()); err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}

	return ledger.New(bunDB), bunDB
}

// Now is a fixed reference instant used across tests.
var Now = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

// SeedEvent inserts a paid event with the given seats and price.
func SeedEvent(t *testing.T, db *ledger.DB, organizerID string, seats int, price int64) *models.Event {
	t.Helper()
	event := &models.Event{
		ID:             uuid.NewString(),
		OrganizerID:    organizerID,
		Name:           "Jazz Night",
		Category:       "music",
		Location:       "Jakarta",
		Paid:           true,
		Price:          decimal.NewFromInt(price),
		TotalSeats:     seats,
		RemainingSeats: seats,
		StartDate:      Now.Add(7 * 24 * time.Hour),
		EndDate:        Now.Add(8 * 24 * time.Hour),
		CreatedAt:      Now,
	}
	if err := db.CreateEvent(context.Background(), event); err != nil {
		t.Fatalf("Failed to seed event: %v", err)
	}
	return event
}

// SeedPoint inserts a referral point record expiring at expiredAt.
func SeedPoint(t *testing.T, db *ledger.DB, userID string, amount int64, expiredAt time.Time) *models.Point {
	t.Helper()
	point := &models.Point{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Source:    models.PointSourceReferral,
		ExpiredAt: expiredAt,
		CreatedAt: Now,
	}
	if err := db.CreatePoint(context.Background(), point); err != nil {
		t.Fatalf("Failed to seed point: %v", err)
	}
	return point
}

// SeedCoupon inserts an unused coupon for userID.
func SeedCoupon(t *testing.T, db *ledger.DB, userID, code string, amount int64, expiredAt time.Time) *models.Coupon {
	t.Helper()
	coupon := &models.Coupon{
		ID:             uuid.NewString(),
		UserID:         userID,
		Code:           code,
		DiscountAmount: decimal.NewFromInt(amount),
		ExpiredAt:      expiredAt,
		CreatedAt:      Now,
	}
	if err := db.CreateCoupon(context.Background(), coupon); err != nil {
		t.Fatalf("Failed to seed coupon: %v", err)
	}
	return coupon
}

// SeedVoucher inserts an active voucher for eventID valid for a day around Now.
func SeedVoucher(t *testing.T, db *ledger.DB, eventID, code string, amount int64, kind models.DiscountType) *models.Voucher {
	t.Helper()
	voucher := &models.Voucher{
		ID:             uuid.NewString(),
		EventID:        eventID,
		Code:           code,
		DiscountAmount: decimal.NewFromInt(amount),
		DiscountType:   kind,
		IsActive:       true,
		StartDate:      Now.Add(-12 * time.Hour),
		EndDate:        Now.Add(12 * time.Hour),
	}
	if err := db.CreateVoucher(context.Background(), voucher); err != nil {
		t.Fatalf("Failed to seed voucher: %v", err)
	}
	return voucher
}
