package recurring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the scheduler loop.
type Config struct {
	Enabled           bool
	IntervalMinutes   int
	BatchSize         int
	MaxRetries        int
	RetryDelayMinutes int
}

func (c Config) withDefaults() Config {
	if c.IntervalMinutes <= 0 {
		c.IntervalMinutes = 60
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelayMinutes < 0 {
		c.RetryDelayMinutes = 0
	}
	return c
}

func (c Config) interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// ConfigUpdate is a partial config; nil fields keep their current value.
type ConfigUpdate struct {
	Enabled           *bool `json:"enabled,omitempty"`
	IntervalMinutes   *int  `json:"interval_minutes,omitempty"`
	BatchSize         *int  `json:"batch_size,omitempty"`
	MaxRetries        *int  `json:"max_retries,omitempty"`
	RetryDelayMinutes *int  `json:"retry_delay_minutes,omitempty"`
}

type Stats struct {
	Running                bool       `json:"running"`
	TotalRuns              uint64     `json:"total_runs"`
	SuccessfulRuns         uint64     `json:"successful_runs"`
	FailedRuns             uint64     `json:"failed_runs"`
	SkippedRuns            uint64     `json:"skipped_runs"`
	TotalPaymentsProcessed uint64     `json:"total_payments_processed"`
	TotalPaymentsCreated   uint64     `json:"total_payments_created"`
	TotalErrors            uint64     `json:"total_errors"`
	LastRunTime            *time.Time `json:"last_run_time,omitempty"`
	NextRunTime            *time.Time `json:"next_run_time,omitempty"`
}

type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

type LogFilter struct {
	Level string // empty matches all
	Limit int    // 0 means everything retained
}

const logRingSize = 256

// CycleRunner is what the scheduler drives once per tick.
type CycleRunner interface {
	ProcessDue(ctx context.Context, now time.Time, batchSize int) (Result, error)
}

// Scheduler drives the processor on a fixed cadence with a reentrancy guard:
// a tick that lands while a cycle is in flight is skipped and logged, never
// queued. One active instance per deployment is assumed; the guard is
// in-process only.
type Scheduler struct {
	runner CycleRunner
	log    zerolog.Logger
	now    func() time.Time

	mu         sync.Mutex
	cfg        Config
	running    bool
	processing bool
	stopCh     chan struct{}
	ticker     *time.Ticker
	stats      Stats
	ring       []LogEntry
}

func NewScheduler(runner CycleRunner, cfg Config, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		cfg:    cfg.withDefaults(),
		log:    log,
		now:    time.Now,
	}
}

// Start runs one cycle immediately and then ticks every interval. It is a
// warning-level no-op when already running or when the config disables the
// scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("scheduler already running, start ignored")
		s.addLog("warn", "start ignored: already running")
		return
	}
	if !s.cfg.Enabled {
		s.mu.Unlock()
		s.log.Warn().Msg("scheduler disabled by config, start ignored")
		s.addLog("warn", "start ignored: disabled")
		return
	}
	interval := s.cfg.interval()
	s.running = true
	s.stopCh = make(chan struct{})
	s.ticker = time.NewTicker(interval)
	next := s.now().Add(interval)
	s.stats.NextRunTime = &next
	stopCh := s.stopCh
	ticker := s.ticker
	s.mu.Unlock()

	s.log.Info().Dur("interval", interval).Msg("scheduler started")

	go func() {
		s.runCycle(ctx, "startup")
		for {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runCycle(ctx, "tick")
			}
		}
	}()
}

// Stop cancels the timer. An in-flight cycle finishes on its own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.ticker.Stop()
	s.ticker = nil
	s.stats.NextRunTime = nil
	s.mu.Unlock()
	s.log.Info().Msg("scheduler stopped")
}

// ForceRun executes one cycle out of band and returns its result to the
// caller. It honors the same reentrancy guard as timed cycles.
func (s *Scheduler) ForceRun(ctx context.Context) (Result, error) {
	res, ran, err := s.cycle(ctx)
	if !ran {
		return Result{}, fmt.Errorf("a cycle is already in flight")
	}
	return res, err
}

// UpdateConfig hot-swaps configuration. An interval change while running
// resets the ticker without touching an in-flight cycle.
func (s *Scheduler) UpdateConfig(u ConfigUpdate) Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldInterval := s.cfg.IntervalMinutes
	if u.Enabled != nil {
		s.cfg.Enabled = *u.Enabled
	}
	if u.IntervalMinutes != nil {
		s.cfg.IntervalMinutes = *u.IntervalMinutes
	}
	if u.BatchSize != nil {
		s.cfg.BatchSize = *u.BatchSize
	}
	if u.MaxRetries != nil {
		s.cfg.MaxRetries = *u.MaxRetries
	}
	if u.RetryDelayMinutes != nil {
		s.cfg.RetryDelayMinutes = *u.RetryDelayMinutes
	}
	s.cfg = s.cfg.withDefaults()

	if s.running && s.ticker != nil && s.cfg.IntervalMinutes != oldInterval {
		s.ticker.Reset(s.cfg.interval())
		next := s.now().Add(s.cfg.interval())
		s.stats.NextRunTime = &next
		s.log.Info().Int("interval_minutes", s.cfg.IntervalMinutes).Msg("scheduler interval updated")
		s.addLog("info", fmt.Sprintf("interval changed %dm -> %dm", oldInterval, s.cfg.IntervalMinutes))
	}
	return s.cfg
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Running = s.running
	return st
}

func (s *Scheduler) Logs(f LogFilter) []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, 0, len(s.ring))
	for _, e := range s.ring {
		if f.Level != "" && e.Level != f.Level {
			continue
		}
		out = append(out, e)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

func (s *Scheduler) runCycle(ctx context.Context, trigger string) {
	res, ran, err := s.cycle(ctx)
	if !ran {
		return
	}
	if err != nil {
		s.log.Error().Str("trigger", trigger).Err(err).Msg("cycle failed")
		return
	}
	s.log.Info().
		Str("trigger", trigger).
		Int("processed", res.ProcessedCount).
		Int("created", len(res.CreatedRecords)).
		Int("deactivated", res.DeactivatedCount).
		Int("errors", len(res.Errors)).
		Msg("cycle complete")
}

// cycle is the single entry point for both timed and forced runs. ran=false
// means the reentrancy guard skipped it.
func (s *Scheduler) cycle(ctx context.Context) (Result, bool, error) {
	s.mu.Lock()
	if s.processing {
		s.stats.SkippedRuns++
		s.addLog("warn", "cycle skipped: previous cycle still in flight")
		s.mu.Unlock()
		s.log.Warn().Msg("cycle skipped, previous still running")
		return Result{}, false, nil
	}
	s.processing = true
	cfg := s.cfg
	s.mu.Unlock()

	started := s.now()
	s.addLogLocked("info", "cycle started")

	res, err := s.runWithRetries(ctx, cfg, started)

	s.mu.Lock()
	s.processing = false
	s.stats.TotalRuns++
	s.stats.LastRunTime = &started
	if s.running && s.cfg.Enabled {
		next := s.now().Add(s.cfg.interval())
		s.stats.NextRunTime = &next
	}
	switch {
	case err != nil:
		s.stats.FailedRuns++
		s.stats.TotalErrors++
		s.addLog("error", fmt.Sprintf("cycle failed: %v", err))
	case !res.Success:
		s.stats.FailedRuns++
		s.stats.TotalErrors += uint64(len(res.Errors))
		s.stats.TotalPaymentsProcessed += uint64(res.ProcessedCount)
		s.stats.TotalPaymentsCreated += uint64(len(res.CreatedRecords))
		s.addLog("warn", fmt.Sprintf("cycle finished with %d item error(s)", len(res.Errors)))
	default:
		s.stats.SuccessfulRuns++
		s.stats.TotalPaymentsProcessed += uint64(res.ProcessedCount)
		s.stats.TotalPaymentsCreated += uint64(len(res.CreatedRecords))
		s.addLog("info", fmt.Sprintf("cycle ok: processed=%d created=%d deactivated=%d",
			res.ProcessedCount, len(res.CreatedRecords), res.DeactivatedCount))
	}
	s.mu.Unlock()

	return res, true, err
}

// runWithRetries retries only the due-query bootstrap; item processing is
// never replayed automatically within a cycle.
func (s *Scheduler) runWithRetries(ctx context.Context, cfg Config, now time.Time) (Result, error) {
	var res Result
	var err error
	delay := time.Duration(cfg.RetryDelayMinutes) * time.Minute
	for attempt := 0; ; attempt++ {
		res, err = s.runner.ProcessDue(ctx, now, cfg.BatchSize)
		if err == nil || attempt >= cfg.MaxRetries {
			return res, err
		}
		s.log.Warn().Int("attempt", attempt+1).Err(err).Msg("due query failed, retrying")
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (s *Scheduler) addLogLocked(level, msg string) {
	s.mu.Lock()
	s.addLog(level, msg)
	s.mu.Unlock()
}

// addLog appends to the bounded ring; callers hold s.mu.
func (s *Scheduler) addLog(level, msg string) {
	s.ring = append(s.ring, LogEntry{Time: s.now(), Level: level, Message: msg})
	if len(s.ring) > logRingSize {
		s.ring = s.ring[len(s.ring)-logRingSize:]
	}
}
