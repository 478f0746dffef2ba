package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ObligationKind string

const (
	ObligationIncome  ObligationKind = "income"
	ObligationExpense ObligationKind = "expense"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// RecurringObligation is a recurring income/expense definition. The processor
// soft-deactivates expired obligations; rows are never deleted by it.
type RecurringObligation struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OwnerID     uint            `gorm:"not null;index" json:"owner_id"`
	Kind        ObligationKind  `gorm:"type:varchar(10);not null" json:"kind"`
	Title       string          `json:"title"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency    string          `gorm:"type:varchar(3);default:'USD'" json:"currency"`
	Frequency   Frequency       `gorm:"type:varchar(10);not null" json:"frequency"`
	NextDueDate time.Time       `gorm:"type:date;not null;index:idx_obligations_due,priority:2" json:"next_due_date"`
	EndDate     *time.Time      `gorm:"type:date" json:"end_date,omitempty"`
	IsActive    bool            `gorm:"default:true;index:idx_obligations_due,priority:1" json:"is_active"`
	CategoryID  uint            `json:"category_id"`
	Vendor      string          `json:"vendor"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
