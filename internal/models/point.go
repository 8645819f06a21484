package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PointSource string

const (
	PointSourceReferral PointSource = "REFERRAL"
	PointSourceRefund   PointSource = "REFUND"
)

type Point struct {
	bun.BaseModel `bun:"table:points"`

	ID        string      `bun:"id,pk" json:"id"`
	UserID    string      `bun:"user_id,notnull" json:"user_id"`
	Amount    int64       `bun:"amount,notnull" json:"amount"`
	Source    PointSource `bun:"source,notnull" json:"source"`
	ExpiredAt time.Time   `bun:"expired_at,notnull" json:"expired_at"`
	IsExpired bool        `bun:"is_expired,notnull,default:false" json:"is_expired"`
	CreatedAt time.Time   `bun:"created_at,notnull" json:"created_at"`
}

// Usable reports whether the record can still be spent at now.
func (p Point) Usable(now time.Time) bool {
	return !p.IsExpired && p.Amount > 0 && !p.ExpiredAt.Before(now)
}

type PointBalance struct {
	Total   int64   `json:"total"`
	Records []Point `json:"records"`
}
