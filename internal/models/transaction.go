package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionSuccessful TransactionStatus = "successful"
	TransactionFailed     TransactionStatus = "failed"
	TransactionRefunded   TransactionStatus = "refunded"
)

type TransactionType string

const (
	TransactionSubscription TransactionType = "subscription"
	TransactionUpgrade      TransactionType = "upgrade"
	TransactionDowngrade    TransactionType = "downgrade"
	TransactionRenewal      TransactionType = "renewal"
)

// Transaction mirrors one gateway charge. GatewayReference is the idempotency
// key shared by the direct-verification and webhook paths; it is unique at
// the store level. Status only ever moves pending -> successful|failed, and
// successful -> refunded. Rows are never re-opened.
type Transaction struct {
	ID                   uint              `gorm:"primaryKey" json:"id"`
	OwnerID              uint              `gorm:"not null;index" json:"owner_id"`
	SubscriptionID       *uint             `gorm:"index" json:"subscription_id,omitempty"`
	GatewayTransactionID string            `gorm:"type:varchar(64);index" json:"gateway_transaction_id"`
	GatewayReference     string            `gorm:"type:varchar(64);not null;uniqueIndex" json:"gateway_reference"`
	Amount               decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency             string            `gorm:"type:varchar(3);default:'USD'" json:"currency"`
	Status               TransactionStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	Type                 TransactionType   `gorm:"type:varchar(16);not null" json:"type"`
	Metadata             datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
