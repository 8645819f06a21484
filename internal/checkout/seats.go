package checkout

import (
	"context"
	"errors"
	"fmt"

	"ms-checkout/internal/apperrors"
	"ms-checkout/internal/ledger"
	"ms-checkout/internal/models"
)

type SeatStore interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	DecrementSeats(ctx context.Context, eventID string, n int) (bool, error)
	IncrementSeats(ctx context.Context, eventID string, n int) error
}

// ReserveSeats takes quantity seats from the event. Call it inside an atomic unit:
// the admission read and the guarded decrement must see the same snapshot.
func ReserveSeats(ctx context.Context, s SeatStore, eventID string, quantity int) error {
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return eventErr(err, eventID)
	}
	if event.RemainingSeats < quantity {
		return fmt.Errorf("%w: %d requested, %d left", apperrors.ErrInsufficientSeats, quantity, event.RemainingSeats)
	}

	ok, err := s.DecrementSeats(ctx, eventID, quantity)
	if err != nil {
		return fmt.Errorf("decrement seats: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %d requested", apperrors.ErrInsufficientSeats, quantity)
	}
	return nil
}

// ReleaseSeats returns quantity seats to the event.
func ReleaseSeats(ctx context.Context, s SeatStore, eventID string, quantity int) error {
	if err := s.IncrementSeats(ctx, eventID, quantity); err != nil {
		return eventErr(err, eventID)
	}
	return nil
}

func eventErr(err error, eventID string) error {
	if errors.Is(err, ledger.ErrNotFound) {
		return fmt.Errorf("%w: %s", apperrors.ErrEventNotFound, eventID)
	}
	return err
}
