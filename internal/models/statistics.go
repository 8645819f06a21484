package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type StatisticsOverview struct {
	TotalEvents         int             `json:"total_events"`
	ActiveEvents        int             `json:"active_events"`
	TotalAttendees      int             `json:"total_attendees"`
	TotalRevenue        decimal.Decimal `json:"total_revenue"`
	PendingTransactions int             `json:"pending_transactions"`
}

type EventStatistics struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	TotalSeats     int             `json:"total_seats"`
	RemainingSeats int             `json:"remaining_seats"`
	SoldSeats      int             `json:"sold_seats"`
	Attendees      int             `json:"attendees"`
	Revenue        decimal.Decimal `json:"revenue"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `json:"end_date"`
}

type OrganizerStatistics struct {
	Overview   StatisticsOverview `json:"overview"`
	EventStats []EventStatistics  `json:"event_stats"`
}
