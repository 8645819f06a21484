package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"ms-checkout/internal/apperrors"
	"ms-checkout/internal/ledger"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	"ms-checkout/internal/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Publisher ships lifecycle events to the message bus.
type Publisher interface {
	PublishTransaction(ctx context.Context, event models.TransactionEvent) error
}

// Notifier pushes lifecycle events to connected organizers.
type Notifier interface {
	EmitTransaction(event models.TransactionEvent)
}

// ObjectStore persists an uploaded file and returns its public URL.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// CacheInvalidator drops cached copies of an event after its seats change.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, eventID string) error
}

type Clock func() time.Time

type Service struct {
	DB        *ledger.DB
	Store     ObjectStore
	Publisher Publisher
	Notifier  Notifier
	Cache     CacheInvalidator
	Metrics   *observability.Metrics
	Logger    *logger.Logger
	Now       Clock

	// MaxProofSize bounds payment proof uploads in bytes.
	MaxProofSize int64
}

func NewService(db *ledger.DB, store ObjectStore, publisher Publisher, notifier Notifier, log *logger.Logger) *Service {
	return &Service{
		DB:           db,
		Store:        store,
		Publisher:    publisher,
		Notifier:     notifier,
		Logger:       log,
		Now:          func() time.Time { return time.Now().UTC() },
		MaxProofSize: 5 << 20,
	}
}

type CheckoutRequest struct {
	UserID         string `json:"-"`
	EventID        string `json:"event_id"`
	TicketQuantity int    `json:"ticket_quantity"`
	VoucherCode    string `json:"voucher_code,omitempty"`
	CouponCode     string `json:"coupon_code,omitempty"`
	Points         int64  `json:"points,omitempty"`
}

type UploadProofRequest struct {
	TransactionID string
	UserID        string
	FileName      string
	ContentType   string
	Size          int64
	Body          io.Reader
}

type SettleRequest struct {
	TransactionID string
	Actor         models.Principal
	Decision      models.TransactionStatus
}

// ---------------- CHECKOUT ----------------

// Checkout validates the request, prices it and then reserves seats, records the
// transaction, spends points and consumes the coupon in one atomic unit.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (tx *models.Transaction, err error) {
	ctx, span := observability.StartSpan(ctx, "checkout.Checkout",
		attribute.String("event.id", req.EventID),
		attribute.Int("ticket.quantity", req.TicketQuantity),
	)
	start := time.Now()
	defer func() {
		var points int64
		if tx != nil {
			points = tx.UsedPoint
		}
		s.Metrics.ObserveCheckout(observability.Outcome(err), time.Since(start), points)
		observability.EndSpan(span, err)
	}()

	if req.UserID == "" {
		return nil, apperrors.ErrUnauthorized
	}
	if req.EventID == "" || req.TicketQuantity <= 0 {
		return nil, fmt.Errorf("%w: event and a positive ticket quantity are required", apperrors.ErrInvalidInput)
	}

	now := s.Now()

	event, err := s.DB.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, eventErr(err, req.EventID)
	}
	if event.RemainingSeats < req.TicketQuantity {
		return nil, fmt.Errorf("%w: %d requested, %d left", apperrors.ErrInsufficientSeats, req.TicketQuantity, event.RemainingSeats)
	}

	instruments, err := ResolveInstruments(ctx, s.DB, InstrumentRequest{
		EventID:     req.EventID,
		UserID:      req.UserID,
		VoucherCode: req.VoucherCode,
		CouponCode:  req.CouponCode,
	}, now)
	if err != nil {
		return nil, err
	}

	var available int64
	if req.Points > 0 {
		balance, err := Balance(ctx, s.DB, req.UserID, now)
		if err != nil {
			return nil, err
		}
		available = balance.Total
	}

	price := CalculatePrice(PriceInput{
		UnitPrice:       event.Price,
		Quantity:        req.TicketQuantity,
		Voucher:         instruments.Voucher,
		Coupon:          instruments.Coupon,
		RequestedPoints: req.Points,
		AvailablePoints: available,
	})

	tx = &models.Transaction{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		EventID:        event.ID,
		TicketQuantity: req.TicketQuantity,
		Price:          event.Price,
		TotalPrice:     price.TotalPrice,
		Status:         models.StatusWaitingForPayment,
		UsedPoint:      price.PointsToUse,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if instruments.Voucher != nil {
		tx.UsedVoucherID = &instruments.Voucher.ID
	}
	if instruments.Coupon != nil {
		tx.UsedCouponID = &instruments.Coupon.ID
	}

	err = s.DB.RunAtomic(ctx, func(ctx context.Context, db *ledger.DB) error {
		if err := ReserveSeats(ctx, db, event.ID, tx.TicketQuantity); err != nil {
			return err
		}
		if err := db.CreateTransaction(ctx, tx); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if tx.UsedPoint > 0 {
			if _, err := DeductPoints(ctx, db, tx.UserID, tx.UsedPoint, now); err != nil {
				return err
			}
		}
		if instruments.Coupon != nil {
			ok, err := db.MarkCouponUsed(ctx, instruments.Coupon.ID)
			if err != nil {
				return fmt.Errorf("mark coupon used: %w", err)
			}
			if !ok {
				return fmt.Errorf("%w: %s already used", apperrors.ErrInvalidCoupon, instruments.Coupon.Code)
			}
		}
		return nil
	})
	if err != nil {
		s.logWarn("checkout rejected for event %s: %v", req.EventID, err)
		return nil, err
	}

	s.Logger.LogTransaction("CREATED", tx.ID, fmt.Sprintf("%d seat(s) on event %s, total %s, %d point(s)", tx.TicketQuantity, tx.EventID, tx.TotalPrice.StringFixed(2), tx.UsedPoint))
	s.afterCommit(ctx, *tx, event.OrganizerID, true)
	return tx, nil
}

// ---------------- PAYMENT PROOF ----------------

// UploadProof stores the buyer's payment proof and hands the transaction to the organizer.
func (s *Service) UploadProof(ctx context.Context, req UploadProofRequest) (tx *models.Transaction, err error) {
	ctx, span := observability.StartSpan(ctx, "checkout.UploadProof",
		attribute.String("transaction.id", req.TransactionID),
	)
	defer func() {
		s.Metrics.ObserveUpload(observability.Outcome(err))
		observability.EndSpan(span, err)
	}()

	if req.UserID == "" {
		return nil, apperrors.ErrUnauthorized
	}
	if err := s.validateProof(req); err != nil {
		return nil, err
	}

	tx, err = s.getTransaction(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx.UserID != req.UserID {
		return nil, fmt.Errorf("%w: transaction belongs to another user", apperrors.ErrForbidden)
	}
	if tx.Status != models.StatusWaitingForPayment {
		return nil, fmt.Errorf("%w: status is %s", apperrors.ErrInvalidState, tx.Status)
	}

	key := path.Join("payment-proofs", tx.ID, uuid.NewString()+path.Ext(req.FileName))
	url, err := s.Store.Upload(ctx, key, req.Body, req.Size, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("upload payment proof: %w", err)
	}

	tx.PaymentProof = &url
	tx.Status = models.StatusWaitingForAdminConfirmation
	tx.UpdatedAt = s.Now()

	ok, err := s.DB.UpdateTransactionStatus(ctx, tx, models.StatusWaitingForPayment)
	if err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	if !ok {
		s.logWarn("payment proof %s orphaned, transaction %s changed state", url, tx.ID)
		return nil, fmt.Errorf("%w: transaction %s changed state", apperrors.ErrInvalidState, tx.ID)
	}

	s.Logger.LogTransaction("PROOF_UPLOADED", tx.ID, "awaiting organizer confirmation")
	s.afterCommit(ctx, *tx, s.organizerOf(ctx, tx.EventID), false)
	return tx, nil
}

func (s *Service) validateProof(req UploadProofRequest) error {
	if req.Body == nil {
		return fmt.Errorf("%w: payment proof file is required", apperrors.ErrInvalidInput)
	}
	if !strings.HasPrefix(req.ContentType, "image/") {
		return fmt.Errorf("%w: only image files are allowed", apperrors.ErrInvalidInput)
	}
	if s.MaxProofSize > 0 && req.Size > s.MaxProofSize {
		return fmt.Errorf("%w: file exceeds %d bytes", apperrors.ErrInvalidInput, s.MaxProofSize)
	}
	return nil
}

// ---------------- SETTLEMENT ----------------

// Settle confirms or rejects a transaction awaiting the organizer. Rejection
// gives the seats back and refunds spent points as a new record. Coupons stay consumed.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (tx *models.Transaction, err error) {
	ctx, span := observability.StartSpan(ctx, "checkout.Settle",
		attribute.String("transaction.id", req.TransactionID),
		attribute.String("decision", string(req.Decision)),
	)
	defer func() {
		s.Metrics.ObserveSettlement(string(req.Decision), observability.Outcome(err))
		observability.EndSpan(span, err)
	}()

	if req.Decision != models.StatusDone && req.Decision != models.StatusRejected {
		return nil, fmt.Errorf("%w: decision must be DONE or REJECTED", apperrors.ErrInvalidInput)
	}
	if req.Actor.UserID == "" {
		return nil, apperrors.ErrUnauthorized
	}
	if !req.Actor.IsOrganizer() {
		return nil, fmt.Errorf("%w: only organizers can settle transactions", apperrors.ErrForbidden)
	}

	tx, err = s.getTransaction(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	event, err := s.DB.GetEvent(ctx, tx.EventID)
	if err != nil {
		return nil, eventErr(err, tx.EventID)
	}
	if event.OrganizerID != req.Actor.UserID {
		return nil, fmt.Errorf("%w: event belongs to another organizer", apperrors.ErrForbidden)
	}
	if tx.Status != models.StatusWaitingForAdminConfirmation {
		return nil, fmt.Errorf("%w: status is %s", apperrors.ErrInvalidState, tx.Status)
	}

	now := s.Now()
	var refund *models.Point

	err = s.DB.RunAtomic(ctx, func(ctx context.Context, db *ledger.DB) error {
		current, err := db.GetTransaction(ctx, tx.ID)
		if err != nil {
			return err
		}
		if current.Status != models.StatusWaitingForAdminConfirmation {
			return fmt.Errorf("%w: status is %s", apperrors.ErrInvalidState, current.Status)
		}

		current.Status = req.Decision
		current.UpdatedAt = now
		ok, err := db.UpdateTransactionStatus(ctx, current, models.StatusWaitingForAdminConfirmation)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: transaction %s changed state", apperrors.ErrInvalidState, current.ID)
		}

		if req.Decision == models.StatusRejected {
			if err := ReleaseSeats(ctx, db, current.EventID, current.TicketQuantity); err != nil {
				return err
			}
			if current.UsedPoint > 0 {
				if refund, err = RefundPoints(ctx, db, current.UserID, current.UsedPoint, now); err != nil {
					return err
				}
			}
		}

		tx = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	msg := "confirmed by organizer"
	if refund != nil {
		msg = fmt.Sprintf("rejected, %d seat(s) released, %d point(s) refunded as %s", tx.TicketQuantity, refund.Amount, refund.ID)
	} else if tx.Status == models.StatusRejected {
		msg = fmt.Sprintf("rejected, %d seat(s) released", tx.TicketQuantity)
	}
	s.Logger.LogTransaction(string(tx.Status), tx.ID, msg)
	s.afterCommit(ctx, *tx, event.OrganizerID, tx.Status == models.StatusRejected)
	return tx, nil
}

// ---------------- QUERIES ----------------

// TransactionsForUser lists the caller's own transactions.
func (s *Service) TransactionsForUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	return s.DB.ListTransactionsByUser(ctx, userID)
}

// PendingForOrganizer lists transactions waiting for the organizer's decision.
func (s *Service) PendingForOrganizer(ctx context.Context, actor models.Principal) ([]models.TransactionWithEvent, error) {
	if !actor.IsOrganizer() {
		return nil, apperrors.ErrForbidden
	}
	return s.DB.ListTransactionsForOrganizer(ctx, actor.UserID, models.StatusWaitingForAdminConfirmation)
}

// TransactionForOwner returns a transaction only to the user who bought it.
func (s *Service) TransactionForOwner(ctx context.Context, userID, id string) (*models.Transaction, error) {
	tx, err := s.getTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, apperrors.ErrForbidden
	}
	return tx, nil
}

func (s *Service) getTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := s.DB.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrTransactionNotFound, id)
		}
		return nil, err
	}
	return tx, nil
}

func (s *Service) organizerOf(ctx context.Context, eventID string) string {
	event, err := s.DB.GetEvent(ctx, eventID)
	if err != nil {
		s.logWarn("organizer lookup for event %s failed: %v", eventID, err)
		return ""
	}
	return event.OrganizerID
}

// afterCommit fans the change out. Failures here never undo a committed unit.
func (s *Service) afterCommit(ctx context.Context, tx models.Transaction, organizerID string, seatsChanged bool) {
	event := models.NewTransactionEvent(tx, organizerID, s.Now())

	if seatsChanged && s.Cache != nil {
		if err := s.Cache.Invalidate(ctx, tx.EventID); err != nil {
			s.logWarn("event cache invalidation for %s failed: %v", tx.EventID, err)
		}
	}
	if s.Publisher != nil {
		if err := s.Publisher.PublishTransaction(ctx, event); err != nil {
			s.logWarn("publish %s for transaction %s failed: %v", tx.Status, tx.ID, err)
		}
	}
	if s.Notifier != nil {
		s.Notifier.EmitTransaction(event)
	}
}

func (s *Service) logWarn(format string, args ...interface{}) {
	s.Logger.Warn("CHECKOUT", fmt.Sprintf(format, args...))
}
