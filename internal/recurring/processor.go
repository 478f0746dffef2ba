package recurring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"finance-billing-go/internal/models"
	"finance-billing-go/internal/store"
)

// ObligationSource is the slice of the obligation store the processor needs.
type ObligationSource interface {
	Due(ctx context.Context, now time.Time, limit int) ([]models.RecurringObligation, error)
	Advance(ctx context.Context, id uint, from, to time.Time) error
	Deactivate(ctx context.Context, id uint) error
}

// LedgerWriter records one realized entry per due cycle.
type LedgerWriter interface {
	CreateCycleEntry(ctx context.Context, e *models.Entry) error
}

type ItemError struct {
	ObligationID uint   `json:"obligation_id"`
	Error        string `json:"error"`
}

// Result aggregates one processing cycle. Success is true only when Errors is
// empty; a failed item never aborts the rest of the batch.
type Result struct {
	Success          bool           `json:"success"`
	ProcessedCount   int            `json:"processed_count"`
	CreatedRecords   []models.Entry `json:"created_records"`
	Errors           []ItemError    `json:"errors"`
	DeactivatedCount int            `json:"deactivated_count"`
}

type Processor struct {
	obligations ObligationSource
	ledger      LedgerWriter
	log         zerolog.Logger
}

func NewProcessor(obligations ObligationSource, ledger LedgerWriter, log zerolog.Logger) *Processor {
	return &Processor{obligations: obligations, ledger: ledger, log: log}
}

// ProcessDue runs one cycle over every active obligation due at now, capped
// at batchSize. The returned error is non-nil only when the due query itself
// failed; per-item failures land in Result.Errors.
//
// Item order of operations is deliberate: ledger write first, due-date
// advance second. If the advance fails after a successful write, the record
// stands and the error is reported. Duplicate-charge risk is the accepted
// lesser failure versus silently skipping a recorded payment; the unique
// (obligation, due date) ledger key turns an actual replay into a no-op.
func (p *Processor) ProcessDue(ctx context.Context, now time.Time, batchSize int) (Result, error) {
	res := Result{Success: true}

	due, err := p.obligations.Due(ctx, now, batchSize)
	if err != nil {
		return res, fmt.Errorf("query due obligations: %w", err)
	}

	for i := range due {
		ob := due[i]

		if ob.EndDate != nil && ob.EndDate.Before(now) {
			if err := p.obligations.Deactivate(ctx, ob.ID); err != nil {
				res.Errors = append(res.Errors, ItemError{ObligationID: ob.ID, Error: err.Error()})
				p.log.Error().Uint("obligation", ob.ID).Err(err).Msg("deactivate failed")
				continue
			}
			res.DeactivatedCount++
			p.log.Info().Uint("obligation", ob.ID).Time("end_date", *ob.EndDate).Msg("obligation expired, deactivated")
			continue
		}

		entry, created, err := p.recordCycle(ctx, now, &ob)
		if err != nil {
			// The due date must not move past an unrecorded charge.
			res.Errors = append(res.Errors, ItemError{ObligationID: ob.ID, Error: err.Error()})
			p.log.Error().Uint("obligation", ob.ID).Err(err).Msg("ledger write failed, due date left as-is")
			continue
		}
		if created {
			res.CreatedRecords = append(res.CreatedRecords, *entry)
		}

		next := Advance(ob.NextDueDate, ob.Frequency)
		if err := p.obligations.Advance(ctx, ob.ID, ob.NextDueDate, next); err != nil {
			if errors.Is(err, store.ErrConflict) {
				// Another cycle already advanced the row; nothing lost.
				p.log.Warn().Uint("obligation", ob.ID).Msg("due date already advanced concurrently")
			} else {
				res.Errors = append(res.Errors, ItemError{ObligationID: ob.ID, Error: err.Error()})
				p.log.Error().Uint("obligation", ob.ID).Err(err).Msg("due date advance failed, ledger record stands")
				continue
			}
		}

		res.ProcessedCount++
		p.log.Info().
			Uint("obligation", ob.ID).
			Str("amount", ob.Amount.String()).
			Time("next_due", next).
			Msg("obligation processed")
	}

	res.Success = len(res.Errors) == 0
	return res, nil
}

// recordCycle writes the ledger entry for one due cycle. A duplicate-key
// rejection means a previous run already recorded this cycle before its
// advance committed; that is treated as done, not as a failure.
func (p *Processor) recordCycle(ctx context.Context, now time.Time, ob *models.RecurringObligation) (*models.Entry, bool, error) {
	due := ob.NextDueDate
	entry := &models.Entry{
		OwnerID:               ob.OwnerID,
		Title:                 ob.Title,
		Type:                  string(ob.Kind),
		Amount:                ob.Amount,
		Currency:              ob.Currency,
		CategoryID:            ob.CategoryID,
		Vendor:                ob.Vendor,
		Date:                  now,
		IsRecurring:           true,
		RecurringObligationID: &ob.ID,
		DueDate:               &due,
	}
	if err := p.ledger.CreateCycleEntry(ctx, entry); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			p.log.Warn().Uint("obligation", ob.ID).Time("due", due).Msg("cycle already recorded, skipping ledger write")
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry, true, nil
}
