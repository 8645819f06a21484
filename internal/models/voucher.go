package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

type Voucher struct {
	bun.BaseModel `bun:"table:vouchers"`

	ID             string          `bun:"id,pk" json:"id"`
	EventID        string          `bun:"event_id,notnull" json:"event_id"`
	Code           string          `bun:"code,notnull" json:"code"`
	DiscountAmount decimal.Decimal `bun:"discount_amount,type:numeric(14,2),notnull" json:"discount_amount"`
	DiscountType   DiscountType    `bun:"discount_type,notnull" json:"discount_type"`
	IsActive       bool            `bun:"is_active,notnull" json:"is_active"`
	StartDate      time.Time       `bun:"start_date,notnull" json:"start_date"`
	EndDate        time.Time       `bun:"end_date,notnull" json:"end_date"`
}

// ActiveAt reports whether the voucher is switched on and inside its window.
func (v Voucher) ActiveAt(now time.Time) bool {
	return v.IsActive && !now.Before(v.StartDate) && !now.After(v.EndDate)
}
