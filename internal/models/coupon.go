package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type Coupon struct {
	bun.BaseModel `bun:"table:coupons"`

	ID             string          `bun:"id,pk" json:"id"`
	UserID         string          `bun:"user_id,notnull" json:"user_id"`
	Code           string          `bun:"code,notnull" json:"code"`
	DiscountAmount decimal.Decimal `bun:"discount_amount,type:numeric(14,2),notnull" json:"discount_amount"`
	IsUsed         bool            `bun:"is_used,notnull,default:false" json:"is_used"`
	ExpiredAt      time.Time       `bun:"expired_at,notnull" json:"expired_at"`
	CreatedAt      time.Time       `bun:"created_at,notnull" json:"created_at"`
}

// Redeemable reports whether the coupon can be applied at now.
func (c Coupon) Redeemable(now time.Time) bool {
	return !c.IsUsed && !c.ExpiredAt.Before(now)
}
