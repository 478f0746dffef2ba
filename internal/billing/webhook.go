package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xeipuuv/gojsonschema"

	"finance-billing-go/internal/gateway"
	"finance-billing-go/internal/models"
	"finance-billing-go/internal/store"
)

const webhookProvider = "flutterwave"

type WebhookEventStore interface {
	Record(ctx context.Context, ev *models.WebhookEvent) error
	MarkProcessed(ctx context.Context, id uint, procErr string) error
}

// Event is the tagged union decoded at the boundary. Nothing downstream ever
// touches raw gateway fields.
type Event interface{ eventType() string }

type ChargeCompleted struct {
	EventID              string
	GatewayTransactionID string
	Reference            string
	Status               gateway.ChargeStatus
	Amount               decimal.Decimal
	Currency             string
}

func (ChargeCompleted) eventType() string { return "charge.completed" }

type SubscriptionCancelled struct {
	EventID   string
	Reference string
}

func (SubscriptionCancelled) eventType() string { return "subscription.cancelled" }

type UnknownEvent struct {
	EventID string
	Name    string
}

func (e UnknownEvent) eventType() string { return e.Name }

// Reconciler consumes signed gateway deliveries under at-least-once,
// possibly out-of-order semantics. The transaction-status check inside
// ApplyChargeOutcome is the core duplicate guard; the webhook_events table is
// the audit trail on top.
type Reconciler struct {
	secret []byte
	schema *gojsonschema.Schema
	svc    *Service
	txns   TransactionStore
	events WebhookEventStore
	log    zerolog.Logger
}

func NewReconciler(secret string, schema *gojsonschema.Schema, svc *Service, txns TransactionStore, events WebhookEventStore, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		secret: []byte(secret),
		schema: schema,
		svc:    svc,
		txns:   txns,
		events: events,
		log:    log,
	}
}

// VerifySignature checks the hex HMAC-SHA256 of the raw body in constant
// time. It runs before anything else; a bad signature never reaches parsing.
func (r *Reconciler) VerifySignature(raw []byte, signature string) bool {
	if len(r.secret) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, r.secret)
	mac.Write(raw)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(strings.TrimSpace(signature)))
}

// ProcessWebhook runs the full pipeline: signature, shape validation, decode,
// resolve, idempotent apply. ErrInvalidSignature and ErrMalformedPayload are
// the only errors callers should refuse the delivery for; anything after a
// structurally valid delivery is acknowledged and handled internally.
func (r *Reconciler) ProcessWebhook(ctx context.Context, raw []byte, signature string) error {
	if !r.VerifySignature(raw, signature) {
		return ErrInvalidSignature
	}

	ev, err := r.decode(raw)
	if err != nil {
		return err
	}

	recordID := r.record(ctx, ev, raw)

	switch e := ev.(type) {
	case ChargeCompleted:
		err = r.applyCharge(ctx, e)
	case SubscriptionCancelled:
		err = r.applyCancellation(ctx, e)
	case UnknownEvent:
		// Acknowledged but not processed, so the gateway stops retrying.
		r.log.Info().Str("event", e.Name).Msg("unknown webhook event ignored")
		err = nil
	}

	if recordID != 0 {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		if mErr := r.events.MarkProcessed(ctx, recordID, msg); mErr != nil {
			r.log.Warn().Err(mErr).Msg("webhook audit update failed")
		}
	}
	return err
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID        any             `json:"id"`
		TxRef     string          `json:"tx_ref"`
		FlwRef    string          `json:"flw_ref"`
		Amount    decimal.Decimal `json:"amount"`
		Currency  string          `json:"currency"`
		Status    string          `json:"status"`
		CreatedAt string          `json:"created_at"`
	} `json:"data"`
}

// decode validates the raw body against the JSON schema and produces the
// tagged union. Anything that does not parse is rejected here, never trusted
// downstream.
func (r *Reconciler) decode(raw []byte) (Event, error) {
	res, err := r.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil || !res.Valid() {
		return nil, ErrMalformedPayload
	}

	var p webhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, ErrMalformedPayload
	}

	id := asEventID(p.Data.ID)
	switch p.Event {
	case "charge.completed":
		if p.Data.TxRef == "" && id == "" {
			return nil, ErrMalformedPayload
		}
		return ChargeCompleted{
			EventID:              id,
			GatewayTransactionID: id,
			Reference:            p.Data.TxRef,
			Status:               mapChargeStatus(p.Data.Status),
			Amount:               p.Data.Amount,
			Currency:             p.Data.Currency,
		}, nil
	case "subscription.cancelled":
		return SubscriptionCancelled{EventID: id, Reference: p.Data.TxRef}, nil
	default:
		return UnknownEvent{EventID: id, Name: p.Event}, nil
	}
}

// record writes the audit row. A redelivery collides on the unique event
// index; processing still continues because the transaction-status guard is
// what makes the replay safe, and a delivery that failed mid-processing must
// be retryable.
func (r *Reconciler) record(ctx context.Context, ev Event, raw []byte) uint {
	var id string
	switch e := ev.(type) {
	case ChargeCompleted:
		id = e.EventID
	case SubscriptionCancelled:
		id = e.EventID
	case UnknownEvent:
		id = e.EventID
	}
	row := &models.WebhookEvent{
		Provider:        webhookProvider,
		ProviderEventID: ev.eventType() + ":" + id,
		EventType:       ev.eventType(),
		PayloadJSON:     string(raw),
		SignatureValid:  true,
	}
	if err := r.events.Record(ctx, row); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			r.log.Info().Str("event", row.ProviderEventID).Msg("webhook redelivery")
			return 0
		}
		r.log.Warn().Err(err).Msg("webhook audit insert failed")
		return 0
	}
	return row.ID
}

// applyCharge resolves the transaction by gateway id first, reference second,
// and applies the reported status once.
func (r *Reconciler) applyCharge(ctx context.Context, e ChargeCompleted) error {
	txn, err := r.txns.ByGatewayTransactionID(ctx, e.GatewayTransactionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return Wrap(CodePersistence, err, "resolve transaction")
		}
		txn, err = r.txns.ByReference(ctx, e.Reference)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return E(CodeNotFound, "no transaction for %s / %s", e.GatewayTransactionID, e.Reference)
			}
			return Wrap(CodePersistence, err, "resolve transaction by reference")
		}
	}

	err = r.svc.ApplyChargeOutcome(ctx, txn, e.Status)
	if err != nil {
		var be *Error
		if errors.As(err, &be) && be.Code == CodeDuplicateDelivery {
			r.log.Info().Str("ref", txn.GatewayReference).Msg("duplicate delivery, no-op")
			return nil
		}
	}
	return err
}

// applyCancellation drives the subscription to cancelled; already-cancelled
// is an idempotent no-op.
func (r *Reconciler) applyCancellation(ctx context.Context, e SubscriptionCancelled) error {
	txn, err := r.txns.ByReference(ctx, e.Reference)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return E(CodeNotFound, "no transaction for reference %q", e.Reference)
		}
		return Wrap(CodePersistence, err, "resolve transaction")
	}
	if txn.SubscriptionID == nil {
		return E(CodeValidation, "transaction %s has no subscription", e.Reference)
	}
	sub, err := r.svc.loadSubscription(ctx, *txn.SubscriptionID)
	if err != nil {
		return err
	}
	if sub.Status == models.SubscriptionCancelled {
		return nil
	}
	if err := r.svc.transition(ctx, sub, models.SubscriptionCancelled, nil); err != nil {
		return err
	}
	r.log.Info().Uint("subscription", sub.ID).Msg("subscription cancelled via webhook")
	return nil
}

func mapChargeStatus(s string) gateway.ChargeStatus {
	switch strings.ToLower(s) {
	case "successful", "success":
		return gateway.ChargeStatusSuccessful
	case "failed":
		return gateway.ChargeStatusFailed
	default:
		return gateway.ChargeStatusPending
	}
}

func asEventID(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
