package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PlanInterval string

const (
	PlanIntervalMonth PlanInterval = "month"
	PlanIntervalYear  PlanInterval = "year"
)

// NominalDays is the fixed period length used for daily-rate math: 30 days
// per month and 365 per year regardless of the calendar. A documented
// approximation, not calendar-aware on purpose.
func (i PlanInterval) NominalDays() int {
	if i == PlanIntervalYear {
		return 365
	}
	return 30
}

// Period returns the end of a billing period starting at t.
func (i PlanInterval) Period(t time.Time) time.Time {
	if i == PlanIntervalYear {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

type Plan struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Name          string          `gorm:"not null" json:"name"`
	Code          string          `gorm:"type:varchar(50);not null;uniqueIndex" json:"code"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency      string          `gorm:"type:varchar(3);default:'USD'" json:"currency"`
	Interval      PlanInterval    `gorm:"type:varchar(10);not null;default:'month'" json:"interval"`
	GatewayPlanID string          `gorm:"type:varchar(64)" json:"gateway_plan_id"`
	Features      StringArray     `gorm:"type:jsonb" json:"features"`
	IsActive      bool            `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
