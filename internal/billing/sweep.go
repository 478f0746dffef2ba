package billing

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"finance-billing-go/internal/models"
)

// SweepResult counts what one period-boundary pass did.
type SweepResult struct {
	Cancelled   int `json:"cancelled"`
	Expired     int `json:"expired"`
	PlanChanges int `json:"plan_changes"`
	Errors      int `json:"errors"`
}

// SweepPeriodBoundaries applies the transitions that were deferred to the
// end of a billing period: cancel-at-period-end flags, expirations of lapsed
// periods, and scheduled plan changes. Items are isolated; one failure never
// stops the pass.
func (s *Service) SweepPeriodBoundaries(ctx context.Context, now time.Time) SweepResult {
	var res SweepResult

	if subs, err := s.subs.DueForDeferredCancel(ctx, now); err != nil {
		s.log.Error().Err(err).Msg("sweep: deferred-cancel query failed")
		res.Errors++
	} else {
		for i := range subs {
			sub := subs[i]
			if err := s.transition(ctx, &sub, models.SubscriptionCancelled, map[string]any{"cancel_at_period_end": false}); err != nil {
				s.log.Error().Uint("subscription", sub.ID).Err(err).Msg("sweep: deferred cancel failed")
				res.Errors++
				continue
			}
			s.cancelGatewayPlan(ctx, &sub)
			res.Cancelled++
		}
	}

	if subs, err := s.subs.DueForExpiry(ctx, now); err != nil {
		s.log.Error().Err(err).Msg("sweep: expiry query failed")
		res.Errors++
	} else {
		for i := range subs {
			sub := subs[i]
			if err := s.transition(ctx, &sub, models.SubscriptionExpired, nil); err != nil {
				s.log.Error().Uint("subscription", sub.ID).Err(err).Msg("sweep: expire failed")
				res.Errors++
				continue
			}
			res.Expired++
		}
	}

	if subs, err := s.subs.DueForPlanChange(ctx, now); err != nil {
		s.log.Error().Err(err).Msg("sweep: plan-change query failed")
		res.Errors++
	} else {
		for i := range subs {
			sub := subs[i]
			// Changes gated on a prorated charge are applied by the charge
			// outcome, not the sweep.
			if sub.PendingChargeRef != "" || sub.ScheduledPlanID == nil {
				continue
			}
			if err := s.subs.UpdateIfStatus(ctx, sub.ID, sub.Status, map[string]any{
				"plan_id":           *sub.ScheduledPlanID,
				"scheduled_plan_id": nil,
				"scheduled_plan_at": nil,
			}); err != nil {
				s.log.Error().Uint("subscription", sub.ID).Err(err).Msg("sweep: plan change failed")
				res.Errors++
				continue
			}
			res.PlanChanges++
		}
	}

	s.log.Info().
		Int("cancelled", res.Cancelled).
		Int("expired", res.Expired).
		Int("plan_changes", res.PlanChanges).
		Int("errors", res.Errors).
		Msg("period-boundary sweep complete")
	return res
}

// Sweeper runs the period-boundary pass on a cron cadence.
type Sweeper struct {
	svc  *Service
	spec string
	log  zerolog.Logger
	c    *cron.Cron
}

func NewSweeper(svc *Service, spec string, log zerolog.Logger) *Sweeper {
	return &Sweeper{svc: svc, spec: spec, log: log}
}

func (w *Sweeper) Start(ctx context.Context) error {
	w.c = cron.New()
	_, err := w.c.AddFunc(w.spec, func() {
		w.svc.SweepPeriodBoundaries(ctx, time.Now())
	})
	if err != nil {
		return err
	}
	w.c.Start()
	w.log.Info().Str("spec", w.spec).Msg("period sweep scheduled")
	return nil
}

func (w *Sweeper) Stop() {
	if w.c != nil {
		<-w.c.Stop().Done()
	}
}
