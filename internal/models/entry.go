package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is one realized ledger line (income or expense). Entries produced by
// the recurring processor carry IsRecurring=true and a back-reference to the
// obligation plus the due date they settle; that pair is unique so a replayed
// cycle cannot record the same due cycle twice.
type Entry struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	OwnerID    uint            `gorm:"not null;index" json:"owner_id"`
	Title      string          `json:"title"`
	Type       string          `json:"type"`
	Amount     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency   string          `gorm:"type:varchar(3);default:'USD'" json:"currency"`
	CategoryID uint            `json:"category_id"`
	Vendor     string          `json:"vendor"`
	Tags       StringArray     `gorm:"type:jsonb" json:"tags"`
	Notes      string          `json:"notes"`
	Date       time.Time       `gorm:"type:date;not null;index" json:"date"`

	IsRecurring           bool       `gorm:"default:false" json:"is_recurring"`
	RecurringObligationID *uint      `gorm:"index:ux_entries_obligation_cycle,unique,priority:1" json:"recurring_obligation_id,omitempty"`
	DueDate               *time.Time `gorm:"type:date;index:ux_entries_obligation_cycle,unique,priority:2" json:"due_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StringArray []string

func (sa StringArray) Value() (driver.Value, error) {
	if len(sa) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(sa)
}

func (sa *StringArray) Scan(value interface{}) error {
	if value == nil {
		*sa = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for StringArray: %T", value)
	}
	if len(data) == 0 {
		*sa = nil
		return nil
	}
	return json.Unmarshal(data, sa)
}
