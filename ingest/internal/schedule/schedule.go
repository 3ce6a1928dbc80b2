// Package schedule binds the sync pipeline to its two triggers: a daily
// cron firing and a one-shot bootstrap shortly after process start.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mastersrl/carnivalsync/store"
	"github.com/robfig/cron/v3"
)

const (
	// Daily at 03:00 local time, when the registration site is quiet.
	cronSpec = "0 3 * * *"

	bootstrapDelay  = 2 * time.Second
	readinessPause  = 3 * time.Second
	freshnessWindow = 24 * time.Hour
)

// Scheduler owns the cron instance and the pending bootstrap timer.
type Scheduler struct {
	run           func(ctx context.Context)
	store         *store.Store
	production    bool
	retryAttempts int
	logger        *slog.Logger
	now           func() time.Time

	cron *cron.Cron

	mu        sync.Mutex
	bootstrap *time.Timer
}

// New builds a scheduler around run, which both triggers invoke. The
// run controller's own guard makes overlapping fires safe.
func New(run func(ctx context.Context), st *store.Store, production bool, retryAttempts int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if retryAttempts <= 0 {
		retryAttempts = 3
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		run:           run,
		store:         st,
		production:    production,
		retryAttempts: retryAttempts,
		logger:        logger,
		now:           time.Now,
		cron:          cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

// Start registers the daily trigger and arms the bootstrap timer. ctx
// bounds the runs both triggers launch.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(cronSpec, func() {
		s.logger.Info("scheduled sync firing")
		s.run(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule: register cron: %w", err)
	}
	s.cron.Start()

	s.mu.Lock()
	s.bootstrap = time.AfterFunc(bootstrapDelay, func() { s.bootstrapRun(ctx) })
	s.mu.Unlock()

	s.logger.Info("scheduler started", "cron", cronSpec, "bootstrap_in", bootstrapDelay)
	return nil
}

// Stop halts the cron loop, waits for an in-flight cron-launched call to
// return, and cancels a still-pending bootstrap.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.bootstrap != nil {
		s.bootstrap.Stop()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

// bootstrapRun fires once after startup, unless a recent production sync
// makes it redundant.
func (s *Scheduler) bootstrapRun(ctx context.Context) {
	latest, err := s.latestImported(ctx)
	if err != nil {
		// The store never became ready; run anyway and let the pipeline
		// surface the real failure.
		s.logger.Warn("bootstrap readiness check failed, running regardless", "error", err)
	}

	if s.production && latest != nil {
		age := s.now().Sub(time.UnixMilli(latest.LastSyncAt))
		if age < freshnessWindow {
			s.logger.Info("bootstrap sync skipped, data is fresh",
				"last_sync_age", age.Round(time.Minute))
			return
		}
	}

	s.logger.Info("bootstrap sync firing")
	s.run(ctx)
}

// latestImported retries the freshness lookup while the store warms up.
func (s *Scheduler) latestImported(ctx context.Context) (*store.Event, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		latest, err := s.store.LatestImported(ctx)
		if err == nil {
			return latest, nil
		}
		lastErr = err
		s.logger.Warn("store not ready for bootstrap check",
			"attempt", attempt, "of", s.retryAttempts, "error", err)
		if attempt < s.retryAttempts {
			if serr := sleepCtx(ctx, readinessPause); serr != nil {
				return nil, serr
			}
		}
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
