package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"finance-billing-go/internal/gateway"
	"finance-billing-go/internal/models"
	"finance-billing-go/internal/store"
)

// SubscriptionStore is the slice of the subscription repository the service
// needs. All mutations are status-guarded single-row updates.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *models.Subscription) error
	ByID(ctx context.Context, id uint) (*models.Subscription, error)
	ActiveByOwner(ctx context.Context, ownerID uint) (*models.Subscription, error)
	ByPendingChargeRef(ctx context.Context, ref string) (*models.Subscription, error)
	UpdateIfStatus(ctx context.Context, id uint, expected models.SubscriptionStatus, updates map[string]any) error
	DueForExpiry(ctx context.Context, now time.Time) ([]models.Subscription, error)
	DueForDeferredCancel(ctx context.Context, now time.Time) ([]models.Subscription, error)
	DueForPlanChange(ctx context.Context, now time.Time) ([]models.Subscription, error)
}

type TransactionStore interface {
	Create(ctx context.Context, t *models.Transaction) error
	ByGatewayTransactionID(ctx context.Context, gtxID string) (*models.Transaction, error)
	ByReference(ctx context.Context, ref string) (*models.Transaction, error)
	UpdateStatusIf(ctx context.Context, id uint, from, to models.TransactionStatus, extra map[string]any) error
}

type PlanStore interface {
	ByID(ctx context.Context, id uint) (*models.Plan, error)
}

// transitions is the explicit validity table. Anything absent here is an
// illegal move and must fail loudly; cancelled and expired are terminal.
var transitions = map[models.SubscriptionStatus][]models.SubscriptionStatus{
	models.SubscriptionPending: {models.SubscriptionActive, models.SubscriptionCancelled},
	models.SubscriptionActive:  {models.SubscriptionPastDue, models.SubscriptionCancelled, models.SubscriptionExpired},
	models.SubscriptionPastDue: {models.SubscriptionActive, models.SubscriptionCancelled},
}

func canTransition(from, to models.SubscriptionStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Service owns every subscription status mutation.
type Service struct {
	subs  SubscriptionStore
	txns  TransactionStore
	plans PlanStore
	gw    gateway.Gateway
	log   zerolog.Logger

	callbackURL string
	now         func() time.Time
}

func NewService(subs SubscriptionStore, txns TransactionStore, plans PlanStore, gw gateway.Gateway, callbackURL string, log zerolog.Logger) *Service {
	return &Service{
		subs:        subs,
		txns:        txns,
		plans:       plans,
		gw:          gw,
		callbackURL: callbackURL,
		log:         log,
		now:         time.Now,
	}
}

// CreateResult is what a new-subscription call hands back to the UI: the
// pending row plus the gateway payment link to complete it.
type CreateResult struct {
	Subscription *models.Subscription `json:"subscription"`
	PaymentLink  string               `json:"payment_link"`
	Reference    string               `json:"reference"`
}

// CreateSubscription opens a pending subscription and initializes the first
// charge. The subscription only becomes active once that charge is verified,
// by webhook or by a direct verification call.
func (s *Service) CreateSubscription(ctx context.Context, ownerID, planID uint, customer gateway.Customer) (*CreateResult, error) {
	plan, err := s.plans.ByID(ctx, planID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, E(CodeNotFound, "plan %d not found", planID)
		}
		return nil, Wrap(CodePersistence, err, "load plan")
	}
	if !plan.IsActive {
		return nil, E(CodeValidation, "plan %q is not open for subscription", plan.Code)
	}

	now := s.now()
	sub := &models.Subscription{
		OwnerID:            ownerID,
		PlanID:             plan.ID,
		Status:             models.SubscriptionPending,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   plan.Interval.Period(now),
	}

	ref := newReference("sub")
	sub.PendingChargeRef = ref
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, Wrap(CodePersistence, err, "create subscription")
	}

	txn := &models.Transaction{
		OwnerID:          ownerID,
		SubscriptionID:   &sub.ID,
		GatewayReference: ref,
		Amount:           plan.Amount,
		Currency:         plan.Currency,
		Status:           models.TransactionPending,
		Type:             models.TransactionSubscription,
	}
	if err := s.txns.Create(ctx, txn); err != nil {
		return nil, Wrap(CodePersistence, err, "create transaction")
	}

	charge, err := s.gw.InitializeCharge(ctx, gateway.ChargeRequest{
		Reference:   ref,
		Amount:      plan.Amount,
		Currency:    plan.Currency,
		Customer:    customer,
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		return nil, Wrap(CodeGateway, err, "initialize charge")
	}
	if err := s.txns.UpdateStatusIf(ctx, txn.ID, models.TransactionPending, models.TransactionPending,
		map[string]any{"gateway_transaction_id": charge.GatewayTransactionID}); err != nil {
		return nil, Wrap(CodePersistence, err, "store gateway transaction id")
	}

	s.log.Info().Uint("subscription", sub.ID).Str("ref", ref).Msg("subscription created, awaiting payment")
	return &CreateResult{Subscription: sub, PaymentLink: charge.PaymentLink, Reference: ref}, nil
}

// PlanChangeResult reports a plan-change request. PaymentLink is set only
// when a prorated upgrade charge has to confirm first.
type PlanChangeResult struct {
	Subscription   *models.Subscription `json:"subscription"`
	ProratedAmount decimal.Decimal      `json:"prorated_amount"`
	PaymentLink    string               `json:"payment_link,omitempty"`
	Applied        bool                 `json:"applied"`
}

// UpdateSubscription changes the plan. A pure downgrade (non-positive
// proration) swaps synchronously and issues no credit. An upgrade defers the
// swap behind a prorated charge; if immediate is false the swap waits for the
// period boundary instead.
func (s *Service) UpdateSubscription(ctx context.Context, id, newPlanID uint, immediate bool, customer gateway.Customer) (*PlanChangeResult, error) {
	sub, err := s.loadSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubscriptionActive {
		return nil, E(CodeInvalidTransition, "plan change requires an active subscription, got %s", sub.Status)
	}
	if sub.PlanID == newPlanID {
		return nil, E(CodeValidation, "subscription already on plan %d", newPlanID)
	}

	current, err := s.plans.ByID(ctx, sub.PlanID)
	if err != nil {
		return nil, Wrap(CodePersistence, err, "load current plan")
	}
	next, err := s.plans.ByID(ctx, newPlanID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, E(CodeNotFound, "plan %d not found", newPlanID)
		}
		return nil, Wrap(CodePersistence, err, "load target plan")
	}

	now := s.now()
	daysLeft := daysRemaining(now, sub.CurrentPeriodEnd)
	prorated := Prorate(
		DailyRate(current.Amount, current.Interval.NominalDays()),
		DailyRate(next.Amount, next.Interval.NominalDays()),
		daysLeft,
	)

	if !immediate {
		end := sub.CurrentPeriodEnd
		if err := s.subs.UpdateIfStatus(ctx, sub.ID, models.SubscriptionActive, map[string]any{
			"scheduled_plan_id": next.ID,
			"scheduled_plan_at": end,
		}); err != nil {
			return nil, Wrap(CodePersistence, err, "schedule plan change")
		}
		sub.ScheduledPlanID = &next.ID
		sub.ScheduledPlanAt = &end
		s.log.Info().Uint("subscription", sub.ID).Uint("plan", next.ID).Time("at", end).Msg("plan change scheduled for period end")
		return &PlanChangeResult{Subscription: sub, ProratedAmount: prorated}, nil
	}

	if prorated.Sign() <= 0 {
		// Downgrade: swap now. The negative delta is reported, never refunded.
		if err := s.subs.UpdateIfStatus(ctx, sub.ID, models.SubscriptionActive, map[string]any{
			"plan_id":           next.ID,
			"scheduled_plan_id": nil,
			"scheduled_plan_at": nil,
		}); err != nil {
			return nil, Wrap(CodePersistence, err, "apply downgrade")
		}
		sub.PlanID = next.ID
		s.log.Info().Uint("subscription", sub.ID).Uint("plan", next.ID).Str("delta", prorated.String()).Msg("downgrade applied")
		return &PlanChangeResult{Subscription: sub, ProratedAmount: prorated, Applied: true}, nil
	}

	// Upgrade: the swap waits for the prorated charge to confirm.
	ref := newReference("upg")
	txn := &models.Transaction{
		OwnerID:          sub.OwnerID,
		SubscriptionID:   &sub.ID,
		GatewayReference: ref,
		Amount:           prorated,
		Currency:         next.Currency,
		Status:           models.TransactionPending,
		Type:             models.TransactionUpgrade,
	}
	if err := s.txns.Create(ctx, txn); err != nil {
		return nil, Wrap(CodePersistence, err, "create upgrade transaction")
	}
	charge, err := s.gw.InitializeCharge(ctx, gateway.ChargeRequest{
		Reference:   ref,
		Amount:      prorated,
		Currency:    next.Currency,
		Customer:    customer,
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		return nil, Wrap(CodeGateway, err, "initialize prorated charge")
	}
	if err := s.txns.UpdateStatusIf(ctx, txn.ID, models.TransactionPending, models.TransactionPending,
		map[string]any{"gateway_transaction_id": charge.GatewayTransactionID}); err != nil {
		return nil, Wrap(CodePersistence, err, "store gateway transaction id")
	}
	if err := s.subs.UpdateIfStatus(ctx, sub.ID, models.SubscriptionActive, map[string]any{
		"scheduled_plan_id":  next.ID,
		"scheduled_plan_at":  now,
		"pending_charge_ref": ref,
	}); err != nil {
		return nil, Wrap(CodePersistence, err, "mark pending upgrade")
	}
	sub.ScheduledPlanID = &next.ID
	sub.PendingChargeRef = ref
	s.log.Info().Uint("subscription", sub.ID).Str("ref", ref).Str("amount", prorated.String()).Msg("upgrade awaiting prorated charge")
	return &PlanChangeResult{Subscription: sub, ProratedAmount: prorated, PaymentLink: charge.PaymentLink}, nil
}

// GetSubscription fetches a subscription scoped to its owner.
func (s *Service) GetSubscription(ctx context.Context, ownerID, id uint) (*models.Subscription, error) {
	sub, err := s.loadSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.OwnerID != ownerID {
		return nil, E(CodeNotFound, "subscription %d not found", id)
	}
	return sub, nil
}

// CancelSubscription ends a subscription either now or at the period
// boundary. Deferred cancellation leaves the status untouched and only flips
// cancel_at_period_end; the sweep applies the transition later.
func (s *Service) CancelSubscription(ctx context.Context, id uint, immediate bool) (*models.Subscription, error) {
	sub, err := s.loadSubscription(ctx, id)
	if err != nil {
		return nil, err
	}

	if !immediate {
		if sub.Status.Terminal() {
			return nil, E(CodeInvalidTransition, "%s subscription cannot be cancelled", sub.Status)
		}
		if err := s.subs.UpdateIfStatus(ctx, sub.ID, sub.Status, map[string]any{"cancel_at_period_end": true}); err != nil {
			return nil, Wrap(CodePersistence, err, "mark cancel at period end")
		}
		sub.CancelAtPeriodEnd = true
		s.log.Info().Uint("subscription", sub.ID).Time("at", sub.CurrentPeriodEnd).Msg("cancellation deferred to period end")
		return sub, nil
	}

	if err := s.transition(ctx, sub, models.SubscriptionCancelled, nil); err != nil {
		return nil, err
	}
	s.cancelGatewayPlan(ctx, sub)
	s.log.Info().Uint("subscription", sub.ID).Msg("subscription cancelled")
	return sub, nil
}

// CheckFeatureAccess reports whether the owner's current plan grants a
// feature. past_due still grants access; terminal states never do.
func (s *Service) CheckFeatureAccess(ctx context.Context, ownerID uint, feature string) (bool, error) {
	sub, err := s.subs.ActiveByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, Wrap(CodePersistence, err, "load subscription")
	}
	plan, err := s.plans.ByID(ctx, sub.PlanID)
	if err != nil {
		return false, Wrap(CodePersistence, err, "load plan")
	}
	for _, f := range plan.Features {
		if f == feature {
			return true, nil
		}
	}
	return false, nil
}

// MarkRenewalFailed moves an active subscription to past_due after a failed
// renewal charge.
func (s *Service) MarkRenewalFailed(ctx context.Context, id uint) error {
	sub, err := s.loadSubscription(ctx, id)
	if err != nil {
		return err
	}
	return s.transition(ctx, sub, models.SubscriptionPastDue, nil)
}

// VerifyPayment is the direct verification path. It shares the idempotency
// key space (gateway reference) and all side effects with the webhook path.
func (s *Service) VerifyPayment(ctx context.Context, reference string) (*models.Transaction, error) {
	txn, err := s.txns.ByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, E(CodeNotFound, "no transaction for reference %q", reference)
		}
		return nil, Wrap(CodePersistence, err, "load transaction")
	}
	v, err := s.gw.VerifyByReference(ctx, reference)
	if err != nil {
		return nil, Wrap(CodeGateway, err, "verify transaction")
	}
	if err := s.ApplyChargeOutcome(ctx, txn, v.Status); err != nil {
		var be *Error
		if errors.As(err, &be) && be.Code == CodeDuplicateDelivery {
			return txn, nil
		}
		return nil, err
	}
	return txn, nil
}

// ApplyChargeOutcome records a gateway-reported charge result on the
// transaction and runs the subscription side effects exactly once. A
// transaction already marked successful is the duplicate-delivery guard:
// the call returns CodeDuplicateDelivery, which callers treat as success.
func (s *Service) ApplyChargeOutcome(ctx context.Context, txn *models.Transaction, status gateway.ChargeStatus) error {
	if txn.Status == models.TransactionSuccessful {
		return E(CodeDuplicateDelivery, "transaction %s already settled", txn.GatewayReference)
	}
	if txn.Status != models.TransactionPending {
		// failed/refunded rows are never re-opened
		return E(CodeInvalidTransition, "transaction %s is %s, not pending", txn.GatewayReference, txn.Status)
	}

	switch status {
	case gateway.ChargeStatusSuccessful:
		err := s.txns.UpdateStatusIf(ctx, txn.ID, models.TransactionPending, models.TransactionSuccessful, nil)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				// A racing path settled it first; side effects already ran.
				return E(CodeDuplicateDelivery, "transaction %s settled concurrently", txn.GatewayReference)
			}
			return Wrap(CodePersistence, err, "settle transaction")
		}
		txn.Status = models.TransactionSuccessful
		return s.applySuccessEffects(ctx, txn)
	case gateway.ChargeStatusFailed:
		err := s.txns.UpdateStatusIf(ctx, txn.ID, models.TransactionPending, models.TransactionFailed, nil)
		if err != nil && !errors.Is(err, store.ErrConflict) {
			return Wrap(CodePersistence, err, "fail transaction")
		}
		txn.Status = models.TransactionFailed
		if txn.Type == models.TransactionRenewal && txn.SubscriptionID != nil {
			if err := s.MarkRenewalFailed(ctx, *txn.SubscriptionID); err != nil {
				return err
			}
		}
		return nil
	default:
		// still pending at the gateway; nothing to record yet
		return nil
	}
}

// applySuccessEffects runs the one-time consequences of a settled charge.
func (s *Service) applySuccessEffects(ctx context.Context, txn *models.Transaction) error {
	if txn.SubscriptionID == nil {
		return nil
	}
	sub, err := s.loadSubscription(ctx, *txn.SubscriptionID)
	if err != nil {
		return err
	}

	switch txn.Type {
	case models.TransactionSubscription:
		if err := s.transition(ctx, sub, models.SubscriptionActive, map[string]any{"pending_charge_ref": ""}); err != nil {
			return err
		}
		s.log.Info().Uint("subscription", sub.ID).Msg("subscription activated")
	case models.TransactionUpgrade:
		if sub.ScheduledPlanID == nil {
			return E(CodeValidation, "upgrade charge %s settled but no plan change is pending", txn.GatewayReference)
		}
		if err := s.subs.UpdateIfStatus(ctx, sub.ID, sub.Status, map[string]any{
			"plan_id":            *sub.ScheduledPlanID,
			"scheduled_plan_id":  nil,
			"scheduled_plan_at":  nil,
			"pending_charge_ref": "",
		}); err != nil {
			return Wrap(CodePersistence, err, "apply upgrade")
		}
		s.log.Info().Uint("subscription", sub.ID).Uint("plan", *sub.ScheduledPlanID).Msg("upgrade applied after prorated charge")
	case models.TransactionRenewal:
		plan, err := s.plans.ByID(ctx, sub.PlanID)
		if err != nil {
			return Wrap(CodePersistence, err, "load plan for renewal")
		}
		start := sub.CurrentPeriodEnd
		updates := map[string]any{
			"current_period_start": start,
			"current_period_end":   plan.Interval.Period(start),
		}
		if sub.Status == models.SubscriptionPastDue {
			if err := s.transition(ctx, sub, models.SubscriptionActive, updates); err != nil {
				return err
			}
		} else if err := s.subs.UpdateIfStatus(ctx, sub.ID, sub.Status, updates); err != nil {
			return Wrap(CodePersistence, err, "extend period")
		}
		s.log.Info().Uint("subscription", sub.ID).Msg("period extended after renewal")
	}
	return nil
}

// transition validates against the table before touching the row. The status
// precondition on the update keeps a racing writer from sneaking an illegal
// move in between.
func (s *Service) transition(ctx context.Context, sub *models.Subscription, to models.SubscriptionStatus, extra map[string]any) error {
	if !canTransition(sub.Status, to) {
		return E(CodeInvalidTransition, "cannot move subscription %d from %s to %s", sub.ID, sub.Status, to)
	}
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	if err := s.subs.UpdateIfStatus(ctx, sub.ID, sub.Status, updates); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return E(CodeInvalidTransition, "subscription %d changed concurrently", sub.ID)
		}
		return Wrap(CodePersistence, err, "transition to %s", to)
	}
	sub.Status = to
	return nil
}

func (s *Service) loadSubscription(ctx context.Context, id uint) (*models.Subscription, error) {
	sub, err := s.subs.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, E(CodeNotFound, "subscription %d not found", id)
		}
		return nil, Wrap(CodePersistence, err, "load subscription")
	}
	return sub, nil
}

// cancelGatewayPlan is best-effort; a gateway hiccup must not undo a local
// cancellation.
func (s *Service) cancelGatewayPlan(ctx context.Context, sub *models.Subscription) {
	plan, err := s.plans.ByID(ctx, sub.PlanID)
	if err != nil || plan.GatewayPlanID == "" {
		return
	}
	if err := s.gw.CancelPlan(ctx, plan.GatewayPlanID); err != nil {
		s.log.Warn().Uint("subscription", sub.ID).Err(err).Msg("gateway plan cancel failed")
	}
}

func daysRemaining(now, periodEnd time.Time) int {
	if !periodEnd.After(now) {
		return 0
	}
	d := periodEnd.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}

func newReference(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
