package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID             string          `bun:"id,pk" json:"id"`
	OrganizerID    string          `bun:"organizer_id,notnull" json:"organizer_id"`
	Name           string          `bun:"name,notnull" json:"name"`
	Category       string          `bun:"category" json:"category"`
	Location       string          `bun:"location" json:"location"`
	Description    string          `bun:"description" json:"description,omitempty"`
	Paid           bool            `bun:"paid,notnull" json:"paid"`
	Price          decimal.Decimal `bun:"price,type:numeric(14,2),notnull" json:"price"`
	TotalSeats     int             `bun:"total_seats,notnull" json:"total_seats"`
	RemainingSeats int             `bun:"remaining_seats,notnull" json:"remaining_seats"`
	StartDate      time.Time       `bun:"start_date,notnull" json:"start_date"`
	EndDate        time.Time       `bun:"end_date,notnull" json:"end_date"`
	CreatedAt      time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// SoldSeats is the number of seats currently held by non-rejected transactions.
func (e Event) SoldSeats() int {
	return e.TotalSeats - e.RemainingSeats
}

// EventUpdate carries the organizer-editable fields. Nil means unchanged.
type EventUpdate struct {
	Name        *string          `json:"name,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Location    *string          `json:"location,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	TotalSeats  *int             `json:"total_seats,omitempty"`
	StartDate   *time.Time       `json:"start_date,omitempty"`
	EndDate     *time.Time       `json:"end_date,omitempty"`
}
