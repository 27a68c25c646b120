/*
scheduler.go - Periodic maintenance jobs

PURPOSE:
  Runs the cross-tenant housekeeping that no request triggers:
  the renewal sweep and the retroactive commission backfill.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each run acquires the superuser scope explicitly via RunAsTenant;
    the scope ends when the run returns
  - Both jobs are idempotent, so overlapping or repeated runs are safe
  - A failing job is logged; the other still runs

CONFIGURATION:
  - Interval:  How often to run (default: 1 hour)
  - Enabled:   Whether scheduler is active
  - DaysAhead: Renewal sweep window
  - Backfill:  Whether to run the commission backfill

USAGE:
  scheduler := NewJobScheduler(eng, cfg, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: admin endpoints (manual triggers)
  - engine/renewal.go, engine/commission.go
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/brokerage-engine/config"
	"github.com/warp/brokerage-engine/engine"
)

// JobReport summarizes one scheduler run.
type JobReport struct {
	Renewals engine.GenerationReport
	Backfill *engine.BackfillReport
}

// JobScheduler runs the maintenance jobs on a ticker.
type JobScheduler struct {
	Engine    *engine.Engine
	Interval  time.Duration
	Enabled   bool
	DaysAhead int
	Backfill  bool
	Log       zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewJobScheduler creates a new scheduler.
func NewJobScheduler(e *engine.Engine, cfg config.SchedulerConfig, log zerolog.Logger) *JobScheduler {
	return &JobScheduler{
		Engine:    e,
		Interval:  cfg.Interval,
		Enabled:   cfg.Enabled,
		DaysAhead: cfg.RenewalDaysAhead,
		Backfill:  cfg.Backfill,
		Log:       log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins the scheduler.
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Log.Info().Msg("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.Log.Info().Dur("interval", s.Interval).Msg("started")
}

// Stop stops the scheduler and waits for an in-flight run.
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Log.Info().Msg("stopped")
	}
}

func (s *JobScheduler) run() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stop
		cancel()
	}()

	// Run immediately on start
	s.RunNow(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(ctx)
		case <-s.stop:
			return
		}
	}
}

// RunNow runs both jobs once under the superuser scope.
func (s *JobScheduler) RunNow(ctx context.Context) JobReport {
	var report JobReport

	err := engine.RunAsTenant(ctx, engine.Superuser, func(ctx context.Context) error {
		renewals, err := s.Engine.Renewals.GenerateRenewals(ctx, s.DaysAhead)
		if err != nil {
			s.Log.Error().Err(err).Msg("renewal sweep failed")
		}
		report.Renewals = renewals

		if !s.Backfill {
			return nil
		}
		backfill, err := s.Engine.Commissions.GenerateMissingForHistory(ctx)
		if err != nil {
			s.Log.Error().Err(err).Msg("commission backfill failed")
			return nil
		}
		report.Backfill = &backfill
		return nil
	})
	if err != nil {
		s.Log.Error().Err(err).Msg("run failed")
	}

	evt := s.Log.Info().
		Int("renewals_created", len(report.Renewals.Created)).
		Int("renewals_skipped", report.Renewals.Skipped).
		Int("renewal_errors", report.Renewals.Errors)
	if report.Backfill != nil {
		evt = evt.Int("commissions_created", report.Backfill.Created).
			Int("commissions_skipped", report.Backfill.Skipped).
			Int("commission_errors", report.Backfill.Errors)
	}
	evt.Msg("run completed")

	return report
}
