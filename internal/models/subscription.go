package models

import (
	"time"

	"gorm.io/datatypes"
)

type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// Terminal reports whether a subscription row can never change status again.
// Reactivation always goes through a new row, not an in-place transition.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionCancelled || s == SubscriptionExpired
}

// Subscription tracks one billing lifecycle for a plan. currentPeriodEnd is
// always strictly after currentPeriodStart.
type Subscription struct {
	ID                 uint               `gorm:"primaryKey" json:"id"`
	OwnerID            uint               `gorm:"not null;index" json:"owner_id"`
	PlanID             uint               `gorm:"not null;index" json:"plan_id"`
	Status             SubscriptionStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd  bool               `gorm:"default:false" json:"cancel_at_period_end"`

	// Deferred plan change, applied at the period boundary or when the
	// prorated upgrade charge confirms.
	ScheduledPlanID     *uint      `json:"scheduled_plan_id,omitempty"`
	ScheduledPlanAt     *time.Time `json:"scheduled_plan_at,omitempty"`

	// Reference of the charge whose confirmation this subscription is
	// waiting on (initial payment or prorated upgrade).
	PendingChargeRef string `gorm:"type:varchar(64);index" json:"pending_charge_ref,omitempty"`

	Metadata datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
