package events

import (
	"context"
	"errors"
	"fmt"

	"ms-checkout/internal/apperrors"
	"ms-checkout/internal/ledger"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
)

type DBLayer interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context) ([]models.Event, error)
	ListEventsByOrganizer(ctx context.Context, organizerID string) ([]models.Event, error)
	UpdateEvent(ctx context.Context, event *models.Event) error
	RunAtomic(ctx context.Context, fn func(ctx context.Context, tx *ledger.DB) error) error
}

type EventService struct {
	DB     DBLayer
	Cache  *Cache
	Logger *logger.Logger
}

// NewEventService wires the catalog. cache may be nil.
func NewEventService(db DBLayer, cache *Cache, log *logger.Logger) *EventService {
	return &EventService{DB: db, Cache: cache, Logger: log}
}

// ListOngoing returns the whole catalog, soonest first.
func (s *EventService) ListOngoing(ctx context.Context) ([]models.Event, error) {
	if s.Cache != nil {
		events, ok, err := s.Cache.GetOngoing(ctx)
		if err != nil {
			s.Logger.Warn("CACHE", fmt.Sprintf("Ongoing events read failed: %v", err))
		} else if ok {
			return events, nil
		}
	}

	events, err := s.DB.ListEvents(ctx)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.SetOngoing(ctx, events); err != nil {
			s.Logger.Warn("CACHE", fmt.Sprintf("Ongoing events write failed: %v", err))
		}
	}
	return events, nil
}

func (s *EventService) ListByOrganizer(ctx context.Context, organizerID string) ([]models.Event, error) {
	return s.DB.ListEventsByOrganizer(ctx, organizerID)
}

func (s *EventService) GetByID(ctx context.Context, id string) (*models.Event, error) {
	if s.Cache != nil {
		event, ok, err := s.Cache.GetEvent(ctx, id)
		if err != nil {
			s.Logger.Warn("CACHE", fmt.Sprintf("Event %s read failed: %v", id, err))
		} else if ok {
			return event, nil
		}
	}

	event, err := s.DB.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrEventNotFound, id)
		}
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.SetEvent(ctx, event); err != nil {
			s.Logger.Warn("CACHE", fmt.Sprintf("Event %s write failed: %v", id, err))
		}
	}
	return event, nil
}

// Update applies the organizer's edits. Changing total seats shifts remaining
// seats by the same delta in SQL, so seats sold by a concurrent checkout stay sold.
func (s *EventService) Update(ctx context.Context, actor models.Principal, id string, update models.EventUpdate) (*models.Event, error) {
	if !actor.IsOrganizer() {
		return nil, apperrors.ErrForbidden
	}

	var updated *models.Event
	err := s.DB.RunAtomic(ctx, func(ctx context.Context, tx *ledger.DB) error {
		event, err := tx.GetEventForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return fmt.Errorf("%w: %s", apperrors.ErrEventNotFound, id)
			}
			return err
		}
		if event.OrganizerID != actor.UserID {
			return fmt.Errorf("%w: event belongs to another organizer", apperrors.ErrForbidden)
		}

		if err := applyUpdate(event, update); err != nil {
			return err
		}
		if err := tx.UpdateEvent(ctx, event); err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		if update.TotalSeats != nil {
			ok, err := tx.ResizeEvent(ctx, id, *update.TotalSeats)
			if err != nil {
				return fmt.Errorf("resize event: %w", err)
			}
			if !ok {
				return fmt.Errorf("%w: more than %d seats are already sold", apperrors.ErrInvalidInput, *update.TotalSeats)
			}
		}

		updated, err = tx.GetEvent(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx, id); err != nil {
			s.Logger.Warn("CACHE", fmt.Sprintf("Event %s invalidation failed: %v", id, err))
		}
	}
	s.Logger.LogDatabase("UPDATE", "events", fmt.Sprintf("event %s updated by %s", id, actor.UserID))
	return updated, nil
}

func applyUpdate(event *models.Event, u models.EventUpdate) error {
	if u.Name != nil {
		if *u.Name == "" {
			return fmt.Errorf("%w: name cannot be empty", apperrors.ErrInvalidInput)
		}
		event.Name = *u.Name
	}
	if u.Category != nil {
		event.Category = *u.Category
	}
	if u.Location != nil {
		event.Location = *u.Location
	}
	if u.Description != nil {
		event.Description = *u.Description
	}
	if u.Price != nil {
		if u.Price.IsNegative() {
			return fmt.Errorf("%w: price cannot be negative", apperrors.ErrInvalidInput)
		}
		event.Price = *u.Price
	}
	if u.TotalSeats != nil {
		if *u.TotalSeats < 0 {
			return fmt.Errorf("%w: total seats cannot be negative", apperrors.ErrInvalidInput)
		}
		if sold := event.SoldSeats(); *u.TotalSeats < sold {
			return fmt.Errorf("%w: %d seats are already sold", apperrors.ErrInvalidInput, sold)
		}
	}
	if u.StartDate != nil {
		event.StartDate = u.StartDate.UTC()
	}
	if u.EndDate != nil {
		event.EndDate = u.EndDate.UTC()
	}
	if event.EndDate.Before(event.StartDate) {
		return fmt.Errorf("%w: end date is before start date", apperrors.ErrInvalidInput)
	}
	return nil
}
