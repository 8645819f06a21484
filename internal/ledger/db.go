package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-checkout/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// DB is the ledger store. Bun is either the pool or a transaction handed out by RunAtomic.
type DB struct {
	Bun bun.IDB
}

func New(db *bun.DB) *DB {
	return &DB{Bun: db}
}

// RunAtomic runs fn against a store bound to one database transaction. The
// transaction commits only if fn returns nil. Nested calls join the outer unit.
func (d *DB) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx *DB) error) error {
	switch db := d.Bun.(type) {
	case bun.Tx:
		return fn(ctx, d)
	case *bun.DB:
		return db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, &DB{Bun: tx})
		})
	default:
		return fmt.Errorf("ledger: unsupported handle %T", d.Bun)
	}
}

// lockRows reports whether reads should take row locks. SQLite serialises
// writers on its own and has no FOR UPDATE.
func (d *DB) lockRows() bool {
	if _, ok := d.Bun.(bun.Tx); !ok {
		return false
	}
	return d.Bun.Dialect().Name() == dialect.PG
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return err
}

// ---------------- EVENTS ----------------

// CreateEvent → insert new event
func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	_, err := d.Bun.NewInsert().Model(event).Exec(ctx)
	return err
}

// GetEvent → fetch one event by its ID
func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "event", id)
	}
	return &event, nil
}

// ListEvents → every event, soonest first
func (d *DB) ListEvents(ctx context.Context) ([]models.Event, error) {
	events := []models.Event{}
	err := d.Bun.NewSelect().
		Model(&events).
		Order("start_date ASC").
		Scan(ctx)
	return events, err
}

// ListEventsByOrganizer → events owned by an organizer, latest start first
func (d *DB) ListEventsByOrganizer(ctx context.Context, organizerID string) ([]models.Event, error) {
	events := []models.Event{}
	err := d.Bun.NewSelect().
		Model(&events).
		Where("organizer_id = ?", organizerID).
		Order("start_date DESC").
		Scan(ctx)
	return events, err
}

// GetEventForUpdate → like GetEvent, but inside RunAtomic on Postgres the row
// stays locked until the unit ends
func (d *DB) GetEventForUpdate(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	q := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1)
	if d.lockRows() {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, notFound(err, "event", id)
	}
	return &event, nil
}

// UpdateEvent → update organizer-editable fields. Seat counters are never
// written from the in-memory copy; see ResizeEvent.
func (d *DB) UpdateEvent(ctx context.Context, event *models.Event) error {
	res, err := d.Bun.NewUpdate().
		Model(event).
		Column("name", "category", "location", "description", "price", "start_date", "end_date").
		Where("id = ?", event.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectOne(res, "event", event.ID)
}

// ResizeEvent sets total seats and shifts remaining seats by the same delta,
// relative to the stored row. It reports false when more seats are already
// sold than the new total allows.
func (d *DB) ResizeEvent(ctx context.Context, eventID string, totalSeats int) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("remaining_seats = remaining_seats + (? - total_seats)", totalSeats).
		Set("total_seats = ?", totalSeats).
		Where("id = ?", eventID).
		Where("total_seats - remaining_seats <= ?", totalSeats).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// DecrementSeats removes n seats only while enough remain. It reports false when
// the guard rejected the update.
func (d *DB) DecrementSeats(ctx context.Context, eventID string, n int) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("remaining_seats = remaining_seats - ?", n).
		Where("id = ?", eventID).
		Where("remaining_seats >= ?", n).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// IncrementSeats gives n seats back to the event.
func (d *DB) IncrementSeats(ctx context.Context, eventID string, n int) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("remaining_seats = remaining_seats + ?", n).
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectOne(res, "event", eventID)
}

// ---------------- TRANSACTIONS ----------------

// CreateTransaction → insert new transaction
func (d *DB) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	_, err := d.Bun.NewInsert().Model(tx).Exec(ctx)
	return err
}

// GetTransaction → fetch one transaction by its ID
func (d *DB) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	err := d.Bun.NewSelect().
		Model(&tx).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "transaction", id)
	}
	return &tx, nil
}

// UpdateTransactionStatus moves a transaction from one status to the next. The
// expected current status is part of the WHERE clause so a concurrent transition
// loses instead of overwriting.
func (d *DB) UpdateTransactionStatus(ctx context.Context, tx *models.Transaction, from models.TransactionStatus) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model(tx).
		Column("status", "payment_proof", "updated_at").
		Where("id = ?", tx.ID).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ListTransactionsByUser → a user's transactions, newest first
func (d *DB) ListTransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	txs := []models.Transaction{}
	err := d.Bun.NewSelect().
		Model(&txs).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	return txs, err
}

// ListTransactionsForOrganizer → transactions in a status across an organizer's events
func (d *DB) ListTransactionsForOrganizer(ctx context.Context, organizerID string, status models.TransactionStatus) ([]models.TransactionWithEvent, error) {
	events, err := d.ListEventsByOrganizer(ctx, organizerID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return []models.TransactionWithEvent{}, nil
	}

	names := make(map[string]string, len(events))
	eventIDs := make([]string, len(events))
	for i, e := range events {
		eventIDs[i] = e.ID
		names[e.ID] = e.Name
	}

	var txs []models.Transaction
	err = d.Bun.NewSelect().
		Model(&txs).
		Where("event_id IN (?)", bun.In(eventIDs)).
		Where("status = ?", status).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]models.TransactionWithEvent, len(txs))
	for i, tx := range txs {
		result[i] = models.TransactionWithEvent{
			Transaction: tx,
			EventName:   names[tx.EventID],
			OrganizerID: organizerID,
		}
	}
	return result, nil
}

// ---------------- POINTS ----------------

// ListActivePoints returns spendable point records, soonest expiry first.
// Inside RunAtomic on Postgres the rows stay locked until the unit ends.
func (d *DB) ListActivePoints(ctx context.Context, userID string, now time.Time) ([]models.Point, error) {
	points := []models.Point{}
	q := d.Bun.NewSelect().
		Model(&points).
		Where("user_id = ?", userID).
		Where("is_expired = ?", false).
		Where("expired_at >= ?", now).
		Where("amount > 0").
		Order("expired_at ASC", "created_at ASC")
	if d.lockRows() {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	return points, err
}

func (d *DB) GetPoint(ctx context.Context, id string) (*models.Point, error) {
	var point models.Point
	err := d.Bun.NewSelect().
		Model(&point).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "point", id)
	}
	return &point, nil
}

func (d *DB) CreatePoint(ctx context.Context, point *models.Point) error {
	_, err := d.Bun.NewInsert().Model(point).Exec(ctx)
	return err
}

func (d *DB) UpdatePointAmount(ctx context.Context, id string, amount int64) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Point)(nil)).
		Set("amount = ?", amount).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectOne(res, "point", id)
}

func (d *DB) DeletePoint(ctx context.Context, id string) error {
	res, err := d.Bun.NewDelete().
		Model((*models.Point)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectOne(res, "point", id)
}

// ExpirePoints flags every record whose expiry passed before now. Returns the count.
func (d *DB) ExpirePoints(ctx context.Context, now time.Time) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Point)(nil)).
		Set("is_expired = ?", true).
		Where("is_expired = ?", false).
		Where("expired_at < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------- COUPONS ----------------

func (d *DB) CreateCoupon(ctx context.Context, coupon *models.Coupon) error {
	_, err := d.Bun.NewInsert().Model(coupon).Exec(ctx)
	return err
}

// GetCouponByCode → a user's coupon by its code
func (d *DB) GetCouponByCode(ctx context.Context, code, userID string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := d.Bun.NewSelect().
		Model(&coupon).
		Where("code = ?", code).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "coupon", code)
	}
	return &coupon, nil
}

func (d *DB) ListCoupons(ctx context.Context, userID string) ([]models.Coupon, error) {
	coupons := []models.Coupon{}
	err := d.Bun.NewSelect().
		Model(&coupons).
		Where("user_id = ?", userID).
		Order("expired_at ASC").
		Scan(ctx)
	return coupons, err
}

// MarkCouponUsed flips is_used once. It reports false if the coupon was already used.
func (d *DB) MarkCouponUsed(ctx context.Context, id string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Coupon)(nil)).
		Set("is_used = ?", true).
		Where("id = ?", id).
		Where("is_used = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ---------------- VOUCHERS ----------------

func (d *DB) CreateVoucher(ctx context.Context, voucher *models.Voucher) error {
	_, err := d.Bun.NewInsert().Model(voucher).Exec(ctx)
	return err
}

// GetVoucherByCode → an event's voucher by its code
func (d *DB) GetVoucherByCode(ctx context.Context, code, eventID string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := d.Bun.NewSelect().
		Model(&voucher).
		Where("code = ?", code).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "voucher", code)
	}
	return &voucher, nil
}

func (d *DB) ListVouchersByEvent(ctx context.Context, eventID string) ([]models.Voucher, error) {
	vouchers := []models.Voucher{}
	err := d.Bun.NewSelect().
		Model(&vouchers).
		Where("event_id = ?", eventID).
		Order("end_date ASC").
		Scan(ctx)
	return vouchers, err
}

func expectOne(res sql.Result, what, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return nil
}
