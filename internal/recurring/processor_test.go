package recurring

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finance-billing-go/internal/logging"
	"finance-billing-go/internal/models"
	"finance-billing-go/internal/store"
)

type fakeObligations struct {
	due        []models.RecurringObligation
	dueErr     error
	advanced   map[uint]time.Time
	advanceErr map[uint]error
	inactive   map[uint]bool
}

func newFakeObligations(due ...models.RecurringObligation) *fakeObligations {
	return &fakeObligations{
		due:        due,
		advanced:   map[uint]time.Time{},
		advanceErr: map[uint]error{},
		inactive:   map[uint]bool{},
	}
}

func (f *fakeObligations) Due(ctx context.Context, now time.Time, limit int) ([]models.RecurringObligation, error) {
	if f.dueErr != nil {
		return nil, f.dueErr
	}
	if limit > 0 && len(f.due) > limit {
		return f.due[:limit], nil
	}
	return f.due, nil
}

func (f *fakeObligations) Advance(ctx context.Context, id uint, from, to time.Time) error {
	if err := f.advanceErr[id]; err != nil {
		return err
	}
	f.advanced[id] = to
	return nil
}

func (f *fakeObligations) Deactivate(ctx context.Context, id uint) error {
	f.inactive[id] = true
	return nil
}

type fakeLedger struct {
	entries   []models.Entry
	failFor   map[uint]error
	seenCycle map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{failFor: map[uint]error{}, seenCycle: map[string]bool{}}
}

func (f *fakeLedger) CreateCycleEntry(ctx context.Context, e *models.Entry) error {
	if err := f.failFor[*e.RecurringObligationID]; err != nil {
		return err
	}
	key := fmt.Sprintf("%d:%s", *e.RecurringObligationID, e.DueDate.Format("2006-01-02"))
	if f.seenCycle[key] {
		return store.ErrDuplicate
	}
	f.seenCycle[key] = true
	f.entries = append(f.entries, *e)
	return nil
}

func monthlyObligation(id uint, amount int64, nextDue time.Time) models.RecurringObligation {
	return models.RecurringObligation{
		ID:          id,
		OwnerID:     1,
		Kind:        models.ObligationExpense,
		Title:       "rent",
		Amount:      decimal.NewFromInt(amount),
		Currency:    "USD",
		Frequency:   models.FrequencyMonthly,
		NextDueDate: nextDue,
		IsActive:    true,
	}
}

func TestProcessDueCreatesEntryAndAdvances(t *testing.T) {
	t.Parallel()
	now := date(2024, time.January, 1)
	obs := newFakeObligations(monthlyObligation(7, 50, now))
	ledger := newFakeLedger()
	p := NewProcessor(obs, ledger, logging.Discard())

	res, err := p.ProcessDue(context.Background(), now, 100)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if !res.Success || res.ProcessedCount != 1 || len(res.CreatedRecords) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	entry := res.CreatedRecords[0]
	if !entry.Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("entry amount = %s, want 50", entry.Amount)
	}
	if !entry.IsRecurring || entry.RecurringObligationID == nil || *entry.RecurringObligationID != 7 {
		t.Fatalf("entry missing obligation back-reference: %+v", entry)
	}
	want := date(2024, time.February, 1)
	if got := obs.advanced[7]; !got.Equal(want) {
		t.Fatalf("next due = %s, want %s", got, want)
	}
}

func TestProcessDueDeactivatesExpired(t *testing.T) {
	t.Parallel()
	now := date(2024, time.January, 1)
	end := date(2023, time.December, 31)
	ob := monthlyObligation(3, 20, end)
	ob.EndDate = &end
	obs := newFakeObligations(ob)
	ledger := newFakeLedger()
	p := NewProcessor(obs, ledger, logging.Discard())

	res, err := p.ProcessDue(context.Background(), now, 100)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if res.DeactivatedCount != 1 {
		t.Fatalf("deactivated = %d, want 1", res.DeactivatedCount)
	}
	if len(ledger.entries) != 0 {
		t.Fatalf("expired obligation produced %d ledger entries", len(ledger.entries))
	}
	if !obs.inactive[3] {
		t.Fatal("obligation was not deactivated")
	}
	if _, moved := obs.advanced[3]; moved {
		t.Fatal("expired obligation had its due date advanced")
	}
}

func TestProcessDueIsolatesItemFailures(t *testing.T) {
	t.Parallel()
	now := date(2024, time.January, 1)
	obs := newFakeObligations(
		monthlyObligation(1, 10, now),
		monthlyObligation(2, 20, now),
		monthlyObligation(3, 30, now),
	)
	ledger := newFakeLedger()
	ledger.failFor[2] = errors.New("disk full")
	p := NewProcessor(obs, ledger, logging.Discard())

	res, err := p.ProcessDue(context.Background(), now, 100)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if res.Success {
		t.Fatal("expected Success=false with an item error")
	}
	if len(res.Errors) != 1 || res.Errors[0].ObligationID != 2 {
		t.Fatalf("errors = %+v, want exactly one for obligation 2", res.Errors)
	}
	// the failed item must not advance, the others must
	if _, moved := obs.advanced[2]; moved {
		t.Fatal("obligation 2 advanced past an unrecorded charge")
	}
	if res.ProcessedCount != 2 || len(res.CreatedRecords) != 2 {
		t.Fatalf("surviving items not processed: %+v", res)
	}
}

func TestProcessDueReplayedCycleIsNoDuplicate(t *testing.T) {
	t.Parallel()
	now := date(2024, time.January, 1)
	ob := monthlyObligation(5, 40, now)
	obs := newFakeObligations(ob)
	ledger := newFakeLedger()
	p := NewProcessor(obs, ledger, logging.Discard())

	if _, err := p.ProcessDue(context.Background(), now, 100); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	// simulate a crash before the advance committed: same obligation due again
	res, err := p.ProcessDue(context.Background(), now, 100)
	if err != nil {
		t.Fatalf("replayed cycle: %v", err)
	}
	if !res.Success {
		t.Fatalf("replay reported errors: %+v", res.Errors)
	}
	if len(ledger.entries) != 1 {
		t.Fatalf("replay duplicated the ledger record: %d entries", len(ledger.entries))
	}
	if len(res.CreatedRecords) != 0 {
		t.Fatalf("replay claimed to create records: %+v", res.CreatedRecords)
	}
	want := date(2024, time.February, 1)
	if got := obs.advanced[5]; !got.Equal(want) {
		t.Fatalf("replay did not advance the due date: %s", got)
	}
}

func TestProcessDueAdvanceConflictIsBenign(t *testing.T) {
	t.Parallel()
	now := date(2024, time.January, 1)
	obs := newFakeObligations(monthlyObligation(9, 15, now))
	obs.advanceErr[9] = store.ErrConflict
	ledger := newFakeLedger()
	p := NewProcessor(obs, ledger, logging.Discard())

	res, err := p.ProcessDue(context.Background(), now, 100)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if !res.Success || res.ProcessedCount != 1 {
		t.Fatalf("concurrent advance treated as failure: %+v", res)
	}
}

func TestProcessDueAdvanceFailureKeepsLedgerRecord(t *testing.T) {
	t.Parallel()
	now := date(2024, time.January, 1)
	obs := newFakeObligations(monthlyObligation(4, 25, now))
	obs.advanceErr[4] = errors.New("connection reset")
	ledger := newFakeLedger()
	p := NewProcessor(obs, ledger, logging.Discard())

	res, err := p.ProcessDue(context.Background(), now, 100)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if res.Success {
		t.Fatal("advance failure should surface as an item error")
	}
	if len(ledger.entries) != 1 {
		t.Fatalf("ledger record did not stand: %d entries", len(ledger.entries))
	}
}

func TestProcessDueQueryErrorPropagates(t *testing.T) {
	t.Parallel()
	obs := newFakeObligations()
	obs.dueErr = errors.New("db down")
	p := NewProcessor(obs, newFakeLedger(), logging.Discard())

	if _, err := p.ProcessDue(context.Background(), time.Now(), 10); err == nil {
		t.Fatal("expected error when the due query fails")
	}
}
