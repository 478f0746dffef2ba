// Package gateway wraps the external payment processor. The rest of the
// system talks to the Gateway interface; the HTTP client in client.go is the
// production implementation.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

type ChargeStatus string

const (
	ChargeStatusPending    ChargeStatus = "pending"
	ChargeStatusSuccessful ChargeStatus = "successful"
	ChargeStatusFailed     ChargeStatus = "failed"
)

type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type ChargeRequest struct {
	Reference   string          `json:"tx_ref"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Customer    Customer        `json:"customer"`
	CallbackURL string          `json:"redirect_url"`
}

type Charge struct {
	PaymentLink          string `json:"link"`
	GatewayTransactionID string `json:"id"`
}

type Verification struct {
	Status           ChargeStatus    `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	GatewayReference string          `json:"tx_ref"`
}

// Gateway is the outbound surface of the payment processor. Implementations
// must be safe for concurrent use.
type Gateway interface {
	InitializeCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	VerifyByID(ctx context.Context, gatewayTransactionID string) (*Verification, error)
	VerifyByReference(ctx context.Context, reference string) (*Verification, error)
	CancelPlan(ctx context.Context, gatewayPlanID string) error
}
