package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"finance-billing-go/internal/gateway"
	"finance-billing-go/internal/models"
	"finance-billing-go/internal/store"
)

// memSubs is an in-memory SubscriptionStore mirroring the conditional-update
// semantics of the gorm repository.
type memSubs struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*models.Subscription
}

func newMemSubs() *memSubs {
	return &memSubs{rows: map[uint]*models.Subscription{}}
}

func (m *memSubs) Create(ctx context.Context, sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	sub.ID = m.nextID
	cp := *sub
	m.rows[sub.ID] = &cp
	return nil
}

func (m *memSubs) ByID(ctx context.Context, id uint) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memSubs) ActiveByOwner(ctx context.Context, ownerID uint) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.OwnerID == ownerID &&
			(row.Status == models.SubscriptionActive || row.Status == models.SubscriptionPastDue) {
			cp := *row
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memSubs) ByPendingChargeRef(ctx context.Context, ref string) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.PendingChargeRef == ref {
			cp := *row
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memSubs) UpdateIfStatus(ctx context.Context, id uint, expected models.SubscriptionStatus, updates map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Status != expected {
		return store.ErrConflict
	}
	for k, v := range updates {
		switch k {
		case "status":
			row.Status = v.(models.SubscriptionStatus)
		case "plan_id":
			row.PlanID = toUint(v)
		case "scheduled_plan_id":
			if v == nil {
				row.ScheduledPlanID = nil
			} else {
				u := toUint(v)
				row.ScheduledPlanID = &u
			}
		case "scheduled_plan_at":
			if v == nil {
				row.ScheduledPlanAt = nil
			} else {
				t := v.(time.Time)
				row.ScheduledPlanAt = &t
			}
		case "cancel_at_period_end":
			row.CancelAtPeriodEnd = v.(bool)
		case "pending_charge_ref":
			row.PendingChargeRef = v.(string)
		case "current_period_start":
			row.CurrentPeriodStart = v.(time.Time)
		case "current_period_end":
			row.CurrentPeriodEnd = v.(time.Time)
		default:
			panic(fmt.Sprintf("memSubs: unhandled column %q", k))
		}
	}
	return nil
}

func (m *memSubs) DueForExpiry(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Subscription
	for _, row := range m.rows {
		if row.Status == models.SubscriptionActive && row.CurrentPeriodEnd.Before(now) && !row.CancelAtPeriodEnd {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memSubs) DueForDeferredCancel(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Subscription
	for _, row := range m.rows {
		if row.CancelAtPeriodEnd && !row.CurrentPeriodEnd.After(now) &&
			(row.Status == models.SubscriptionActive || row.Status == models.SubscriptionPastDue) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memSubs) DueForPlanChange(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Subscription
	for _, row := range m.rows {
		if row.Status == models.SubscriptionActive && row.ScheduledPlanID != nil &&
			row.ScheduledPlanAt != nil && !row.ScheduledPlanAt.After(now) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func toUint(v any) uint {
	switch t := v.(type) {
	case uint:
		return t
	case int:
		return uint(t)
	default:
		panic(fmt.Sprintf("toUint: %T", v))
	}
}

// memTxns is an in-memory TransactionStore with the unique-reference and
// status-guard semantics.
type memTxns struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*models.Transaction
}

func newMemTxns() *memTxns {
	return &memTxns{rows: map[uint]*models.Transaction{}}
}

func (m *memTxns) Create(ctx context.Context, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.GatewayReference == t.GatewayReference {
			return store.ErrDuplicate
		}
	}
	m.nextID++
	t.ID = m.nextID
	cp := *t
	m.rows[t.ID] = &cp
	return nil
}

func (m *memTxns) ByID(ctx context.Context, id uint) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memTxns) ByGatewayTransactionID(ctx context.Context, gtxID string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.GatewayTransactionID == gtxID && gtxID != "" {
			cp := *row
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memTxns) ByReference(ctx context.Context, ref string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.GatewayReference == ref {
			cp := *row
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memTxns) UpdateStatusIf(ctx context.Context, id uint, from, to models.TransactionStatus, extra map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Status != from {
		return store.ErrConflict
	}
	row.Status = to
	for k, v := range extra {
		if k == "gateway_transaction_id" {
			row.GatewayTransactionID = v.(string)
		}
	}
	return nil
}

// memPlans is a fixed PlanStore.
type memPlans struct {
	rows map[uint]*models.Plan
}

func newMemPlans(plans ...*models.Plan) *memPlans {
	m := &memPlans{rows: map[uint]*models.Plan{}}
	for _, p := range plans {
		m.rows[p.ID] = p
	}
	return m
}

func (m *memPlans) ByID(ctx context.Context, id uint) (*models.Plan, error) {
	p, ok := m.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// fakeGateway records outbound calls and returns canned answers.
type fakeGateway struct {
	mu          sync.Mutex
	charges     []gateway.ChargeRequest
	initErr     error
	verifyState map[string]gateway.ChargeStatus
	cancelled   []string
	nextTxnID   int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{verifyState: map[string]gateway.ChargeStatus{}}
}

func (f *fakeGateway) InitializeCharge(ctx context.Context, req gateway.ChargeRequest) (*gateway.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return nil, f.initErr
	}
	f.charges = append(f.charges, req)
	f.nextTxnID++
	return &gateway.Charge{
		PaymentLink:          "https://pay.example/" + req.Reference,
		GatewayTransactionID: fmt.Sprintf("gtx-%d", f.nextTxnID),
	}, nil
}

func (f *fakeGateway) VerifyByID(ctx context.Context, id string) (*gateway.Verification, error) {
	return f.verify(id)
}

func (f *fakeGateway) VerifyByReference(ctx context.Context, ref string) (*gateway.Verification, error) {
	return f.verify(ref)
}

func (f *fakeGateway) verify(key string) (*gateway.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.verifyState[key]
	if !ok {
		status = gateway.ChargeStatusPending
	}
	return &gateway.Verification{Status: status, GatewayReference: key}, nil
}

func (f *fakeGateway) CancelPlan(ctx context.Context, gatewayPlanID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, gatewayPlanID)
	return nil
}
