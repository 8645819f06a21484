package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type TransactionStatus string

const (
	StatusWaitingForPayment           TransactionStatus = "WAITING_FOR_PAYMENT"
	StatusWaitingForAdminConfirmation TransactionStatus = "WAITING_FOR_ADMIN_CONFIRMATION"
	StatusDone                        TransactionStatus = "DONE"
	StatusRejected                    TransactionStatus = "REJECTED"
)

func (s TransactionStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusRejected
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusWaitingForPayment, StatusWaitingForAdminConfirmation, StatusDone, StatusRejected:
		return true
	}
	return false
}

type Transaction struct {
	bun.BaseModel `bun:"table:transactions"`

	ID             string            `bun:"id,pk" json:"id"`
	UserID         string            `bun:"user_id,notnull" json:"user_id"`
	EventID        string            `bun:"event_id,notnull" json:"event_id"`
	TicketQuantity int               `bun:"ticket_quantity,notnull" json:"ticket_quantity"`
	Price          decimal.Decimal   `bun:"price,type:numeric(14,2),notnull" json:"price"`
	TotalPrice     decimal.Decimal   `bun:"total_price,type:numeric(14,2),notnull" json:"total_price"`
	Status         TransactionStatus `bun:"status,notnull" json:"status"`
	UsedPoint      int64             `bun:"used_point,notnull,default:0" json:"used_point"`
	UsedVoucherID  *string           `bun:"used_voucher_id" json:"used_voucher_id,omitempty"`
	UsedCouponID   *string           `bun:"used_coupon_id" json:"used_coupon_id,omitempty"`
	PaymentProof   *string           `bun:"payment_proof" json:"payment_proof,omitempty"`
	CreatedAt      time.Time         `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time         `bun:"updated_at,notnull" json:"updated_at"`
}

// TransactionWithEvent is the organizer view of a transaction awaiting review.
type TransactionWithEvent struct {
	Transaction
	EventName   string `json:"event_name"`
	OrganizerID string `json:"organizer_id"`
}
