package rewards

import (
	"context"
	"fmt"
	"time"

	"ms-checkout/internal/logger"
)

type PointExpirer interface {
	ExpirePoints(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper flags point records whose expiry has passed.
type Sweeper struct {
	Store    PointExpirer
	Interval time.Duration
	Logger   *logger.Logger
	Now      func() time.Time
}

func NewSweeper(store PointExpirer, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{Store: store, Interval: interval, Logger: log, Now: time.Now}
}

// SweepOnce expires everything that ran out before now.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.Store.ExpirePoints(ctx, s.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire points: %w", err)
	}
	if n > 0 {
		s.Logger.LogDatabase("UPDATE", "points", fmt.Sprintf("%d point records expired", n))
	}
	return n, nil
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.Logger.Error("REWARDS", err.Error())
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
