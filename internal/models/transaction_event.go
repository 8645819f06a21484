package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionEvent is the payload published on every transaction status change.
type TransactionEvent struct {
	TransactionID  string            `json:"transaction_id"`
	UserID         string            `json:"user_id"`
	EventID        string            `json:"event_id"`
	OrganizerID    string            `json:"organizer_id"`
	Status         TransactionStatus `json:"status"`
	TicketQuantity int               `json:"ticket_quantity"`
	TotalPrice     decimal.Decimal   `json:"total_price"`
	UsedPoint      int64             `json:"used_point"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

func NewTransactionEvent(tx Transaction, organizerID string, at time.Time) TransactionEvent {
	return TransactionEvent{
		TransactionID:  tx.ID,
		UserID:         tx.UserID,
		EventID:        tx.EventID,
		OrganizerID:    organizerID,
		Status:         tx.Status,
		TicketQuantity: tx.TicketQuantity,
		TotalPrice:     tx.TotalPrice,
		UsedPoint:      tx.UsedPoint,
		OccurredAt:     at,
	}
}
