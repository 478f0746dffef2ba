package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"finance-billing-go/internal/models"
)

type Subscriptions struct {
	db *gorm.DB
}

func NewSubscriptions(db *gorm.DB) *Subscriptions {
	return &Subscriptions{db: db}
}

func (s *Subscriptions) Create(ctx context.Context, sub *models.Subscription) error {
	return translate(s.db.WithContext(ctx).Create(sub).Error)
}

func (s *Subscriptions) ByID(ctx context.Context, id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

// ActiveByOwner returns the owner's newest subscription still granting
// access (active or past_due).
func (s *Subscriptions) ActiveByOwner(ctx context.Context, ownerID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND status IN ?", ownerID,
			[]models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionPastDue}).
		Order("created_at desc").
		First(&sub).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *Subscriptions) ByPendingChargeRef(ctx context.Context, ref string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("pending_charge_ref = ?", ref).
		First(&sub).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

// UpdateIfStatus mutates a subscription only while it still has the expected
// status. Every state-machine transition goes through this guard.
func (s *Subscriptions) UpdateIfStatus(ctx context.Context, id uint, expected models.SubscriptionStatus, updates map[string]any) error {
	res := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// DueForExpiry lists active subscriptions whose period lapsed without a
// renewal and without a deferred cancellation.
func (s *Subscriptions) DueForExpiry(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	var out []models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND current_period_end < ? AND cancel_at_period_end = ?",
			models.SubscriptionActive, now, false).
		Find(&out).Error
	return out, translate(err)
}

// DueForDeferredCancel lists subscriptions whose period lapsed with
// cancel-at-period-end set.
func (s *Subscriptions) DueForDeferredCancel(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	var out []models.Subscription
	err := s.db.WithContext(ctx).
		Where("status IN ? AND current_period_end <= ? AND cancel_at_period_end = ?",
			[]models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionPastDue}, now, true).
		Find(&out).Error
	return out, translate(err)
}

// DueForPlanChange lists subscriptions with a scheduled plan change whose
// effective date has arrived.
func (s *Subscriptions) DueForPlanChange(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	var out []models.Subscription
	err := s.db.WithContext(ctx).
		Where("scheduled_plan_id IS NOT NULL AND scheduled_plan_at <= ? AND status = ?",
			now, models.SubscriptionActive).
		Find(&out).Error
	return out, translate(err)
}
