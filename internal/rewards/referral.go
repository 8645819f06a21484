// Package rewards mints referral rewards for new registrations and expires
// point records that outlived their validity.
package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-checkout/internal/apperrors"
	"ms-checkout/internal/config"
	appkafka "ms-checkout/internal/kafka"
	"ms-checkout/internal/ledger"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	"ms-checkout/internal/utils"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// rewardNamespace seeds the deterministic ids of referral rewards so a
// redelivered registration maps onto the records it already produced.
var rewardNamespace = uuid.MustParse("6f1c3d2e-8a4b-4c55-9e71-2b0f3a9d7c10")

type ReferralService struct {
	DB             *ledger.DB
	Points         int64
	CouponAmount   decimal.Decimal
	ValidityMonths int
	Logger         *logger.Logger
	Now            func() time.Time
}

func NewReferralService(db *ledger.DB, cfg config.RewardsConfig, log *logger.Logger) (*ReferralService, error) {
	amount, err := decimal.NewFromString(cfg.WelcomeCouponAmount)
	if err != nil {
		return nil, fmt.Errorf("welcome coupon amount %q: %w", cfg.WelcomeCouponAmount, err)
	}
	months := cfg.ValidityMonths
	if months <= 0 {
		months = 3
	}
	return &ReferralService{
		DB:             db,
		Points:         cfg.ReferralPoints,
		CouponAmount:   amount,
		ValidityMonths: months,
		Logger:         log,
		Now:            time.Now,
	}, nil
}

// Reward is what a single registration produced.
type Reward struct {
	Point  *models.Point  `json:"point"`
	Coupon *models.Coupon `json:"coupon"`
}

// HandleRegistration credits the referrer with points and gives the new user a
// welcome coupon, atomically. Registrations without a referrer are ignored. A
// registration that was already rewarded returns (nil, nil).
func (s *ReferralService) HandleRegistration(ctx context.Context, evt models.UserRegisteredEvent) (*Reward, error) {
	if evt.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", apperrors.ErrInvalidInput)
	}
	if evt.ReferrerID == "" {
		return nil, nil
	}
	if evt.ReferrerID == evt.UserID {
		return nil, fmt.Errorf("%w: user %s referred themselves", apperrors.ErrInvalidInput, evt.UserID)
	}

	now := s.Now().UTC()
	expiry := utils.MonthsFrom(now, s.ValidityMonths)

	code, err := utils.GenerateReferralCode()
	if err != nil {
		return nil, err
	}

	reward := &Reward{
		Point: &models.Point{
			ID:        uuid.NewSHA1(rewardNamespace, []byte("point:"+evt.UserID)).String(),
			UserID:    evt.ReferrerID,
			Amount:    s.Points,
			Source:    models.PointSourceReferral,
			ExpiredAt: expiry,
			CreatedAt: now,
		},
		Coupon: &models.Coupon{
			ID:             uuid.NewSHA1(rewardNamespace, []byte("coupon:"+evt.UserID)).String(),
			UserID:         evt.UserID,
			Code:           code,
			DiscountAmount: s.CouponAmount,
			ExpiredAt:      expiry,
			CreatedAt:      now,
		},
	}

	duplicate := false
	err = s.DB.RunAtomic(ctx, func(ctx context.Context, tx *ledger.DB) error {
		_, err := tx.GetPoint(ctx, reward.Point.ID)
		if err == nil {
			duplicate = true
			return nil
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return err
		}

		if err := tx.CreatePoint(ctx, reward.Point); err != nil {
			return fmt.Errorf("create referral point: %w", err)
		}
		if err := tx.CreateCoupon(ctx, reward.Coupon); err != nil {
			return fmt.Errorf("create welcome coupon: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if duplicate {
		s.Logger.Info("REWARDS", fmt.Sprintf("Registration of %s already rewarded", evt.UserID))
		return nil, nil
	}

	s.Logger.LogDatabase("INSERT", "points", fmt.Sprintf("%d referral points for %s", reward.Point.Amount, evt.ReferrerID))
	s.Logger.LogDatabase("INSERT", "coupons", fmt.Sprintf("welcome coupon %s for %s", reward.Coupon.Code, evt.UserID))
	return reward, nil
}

// KafkaHandler decodes user registration messages for the consumer loop.
// Undecodable or invalid registrations fail permanently; store errors are
// returned as-is so the message is redelivered.
func (s *ReferralService) KafkaHandler() appkafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt models.UserRegisteredEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return appkafka.Permanent(fmt.Errorf("decode registration at offset %d: %w", msg.Offset, err))
		}
		_, err := s.HandleRegistration(ctx, evt)
		if errors.Is(err, apperrors.ErrInvalidInput) {
			return appkafka.Permanent(err)
		}
		return err
	}
}
