package analytics

import (
	"context"
	"fmt"
	"time"

	"ms-checkout/internal/models"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// RecentEventsLimit is how many events the statistics payload breaks down.
const RecentEventsLimit = 10

// Service handles analytics operations
type Service struct {
	db bun.IDB
}

// NewService creates a new analytics service
func NewService(db bun.IDB) *Service {
	return &Service{db: db}
}

// DailySalesMetrics contains settled sales for a single day
type DailySalesMetrics struct {
	Date        string          `json:"date"`
	Revenue     decimal.Decimal `json:"revenue"`
	TicketsSold int             `json:"tickets_sold"`
}

// eventSales is the DONE aggregate of one event
type eventSales struct {
	EventID   string          `bun:"event_id"`
	Attendees int             `bun:"attendees"`
	Revenue   decimal.Decimal `bun:"revenue"`
}

func (s *Service) organizerEvents(organizerID string) *bun.SelectQuery {
	return s.db.NewSelect().
		Model((*models.Event)(nil)).
		Column("id").
		Where("organizer_id = ?", organizerID)
}

// OrganizerStatistics returns the organizer overview and a breakdown of the
// most recently created events. Only DONE transactions count as attendance or revenue.
func (s *Service) OrganizerStatistics(ctx context.Context, organizerID string, now time.Time) (*models.OrganizerStatistics, error) {
	var events []models.Event
	err := s.db.NewSelect().
		Model(&events).
		Where("organizer_id = ?", organizerID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	var sales []eventSales
	err = s.db.NewSelect().
		TableExpr("transactions").
		ColumnExpr("event_id").
		ColumnExpr("COALESCE(SUM(ticket_quantity), 0) AS attendees").
		ColumnExpr("COALESCE(SUM(total_price), 0) AS revenue").
		Where("status = ?", models.StatusDone).
		Where("event_id IN (?)", s.organizerEvents(organizerID)).
		GroupExpr("event_id").
		Scan(ctx, &sales)
	if err != nil {
		return nil, fmt.Errorf("aggregate sales: %w", err)
	}

	pending, err := s.db.NewSelect().
		Model((*models.Transaction)(nil)).
		Where("status = ?", models.StatusWaitingForAdminConfirmation).
		Where("event_id IN (?)", s.organizerEvents(organizerID)).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count pending: %w", err)
	}

	byEvent := make(map[string]eventSales, len(sales))
	overview := models.StatisticsOverview{
		TotalEvents:         len(events),
		TotalRevenue:        decimal.Zero,
		PendingTransactions: pending,
	}
	for _, row := range sales {
		byEvent[row.EventID] = row
		overview.TotalAttendees += row.Attendees
		overview.TotalRevenue = overview.TotalRevenue.Add(row.Revenue)
	}
	for _, e := range events {
		if !e.EndDate.Before(now) {
			overview.ActiveEvents++
		}
	}

	recent := events
	if len(recent) > RecentEventsLimit {
		recent = recent[:RecentEventsLimit]
	}
	stats := make([]models.EventStatistics, 0, len(recent))
	for _, e := range recent {
		row := byEvent[e.ID]
		stats = append(stats, models.EventStatistics{
			ID:             e.ID,
			Name:           e.Name,
			TotalSeats:     e.TotalSeats,
			RemainingSeats: e.RemainingSeats,
			SoldSeats:      e.SoldSeats(),
			Attendees:      row.Attendees,
			Revenue:        row.Revenue,
			StartDate:      e.StartDate,
			EndDate:        e.EndDate,
		})
	}

	return &models.OrganizerStatistics{Overview: overview, EventStats: stats}, nil
}

// DailySales returns settled revenue and tickets per calendar day across the organizer's events
func (s *Service) DailySales(ctx context.Context, organizerID string) ([]DailySalesMetrics, error) {
	type dailySalesRaw struct {
		SalesDate     string          `bun:"sales_date"`
		DailyRevenue  decimal.Decimal `bun:"daily_revenue"`
		DailyQuantity int             `bun:"daily_quantity"`
	}

	var rows []dailySalesRaw
	err := s.db.NewSelect().
		TableExpr("transactions").
		ColumnExpr("CAST(DATE(updated_at) AS TEXT) AS sales_date").
		ColumnExpr("COALESCE(SUM(total_price), 0) AS daily_revenue").
		ColumnExpr("COALESCE(SUM(ticket_quantity), 0) AS daily_quantity").
		Where("status = ?", models.StatusDone).
		Where("event_id IN (?)", s.organizerEvents(organizerID)).
		GroupExpr("CAST(DATE(updated_at) AS TEXT)").
		OrderExpr("sales_date").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("daily sales: %w", err)
	}

	result := make([]DailySalesMetrics, 0, len(rows))
	for _, ds := range rows {
		result = append(result, DailySalesMetrics{
			Date:        ds.SalesDate,
			Revenue:     ds.DailyRevenue,
			TicketsSold: ds.DailyQuantity,
		})
	}
	return result, nil
}
