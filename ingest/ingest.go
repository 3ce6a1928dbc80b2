// Package ingest is the sync pipeline's run controller: it owns the run
// lock, decides between mock and scraped data, pipes candidates through
// normalisation into the reconciler, and exposes status for the admin
// surfaces.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mastersrl/carnivalsync/ingest/internal/parse"
	"github.com/mastersrl/carnivalsync/ingest/internal/reconcile"
	"github.com/mastersrl/carnivalsync/ingest/internal/schedule"
	"github.com/mastersrl/carnivalsync/internal/idgen"
	"github.com/mastersrl/carnivalsync/notify"
	"github.com/mastersrl/carnivalsync/store"
)

// Notifier receives an intent per created or drifted event. The notify
// dispatcher implements it.
type Notifier interface {
	Notify(ctx context.Context, intent notify.Intent) (notify.Summary, error)
}

// Fetcher produces ranked candidates from the registration site. The
// browser driver implements it; tests substitute their own.
type Fetcher interface {
	Fetch(ctx context.Context) []parse.Candidate
}

// FetchFunc adapts a function to the Fetcher interface.
type FetchFunc func(ctx context.Context) []parse.Candidate

func (f FetchFunc) Fetch(ctx context.Context) []parse.Candidate { return f(ctx) }

// Service is the run controller. One run executes at a time per process;
// re-entry while running is rejected, not queued.
type Service struct {
	cfg     *Config
	store   *store.Store
	rec     *reconcile.Reconciler
	fetcher Fetcher
	logger  *slog.Logger
	sched   *schedule.Scheduler
	now     func() time.Time

	mu         sync.Mutex
	running    bool
	lastRunAt  time.Time
	lastResult *RunResult
}

// NewService wires the run controller, its reconciler and the scheduler
// binding. notifier and fetcher may be nil: no notifications, and no
// browser when scraping is disabled or mock data is on.
func NewService(cfg *Config, st *store.Store, notifier Notifier, fetcher Fetcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cfg:     cfg,
		store:   st,
		rec:     reconcile.New(st, notifier, cfg.RequestDelay(), logger),
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
	}
	s.sched = schedule.New(func(ctx context.Context) { s.Run(ctx) },
		st, cfg.Production(), cfg.RetryAttempts, logger)
	return s
}

// StartScheduler arms the daily and bootstrap triggers. ctx bounds the
// runs they launch.
func (s *Service) StartScheduler(ctx context.Context) error {
	return s.sched.Start(ctx)
}

// StopScheduler halts the cron loop and cancels a pending bootstrap.
func (s *Service) StopScheduler() {
	s.sched.Stop()
}

// Run executes one pipeline pass. Disabled sync is a no-op success;
// a run already in flight is rejected. A run cannot be cancelled once
// its reconciliation has started, but ctx still bounds the browser work.
func (s *Service) Run(ctx context.Context) RunResult {
	if !s.cfg.SyncEnabled {
		return RunResult{Success: true, Processed: 0, Message: "disabled"}
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return RunResult{Success: false, Message: "already running"}
	}
	s.running = true
	s.mu.Unlock()

	// The flag clears on every exit path, a panic escaping the
	// pipeline included, so the controller never wedges on
	// "already running".
	var result RunResult
	defer func() {
		s.mu.Lock()
		s.running = false
		s.lastResult = &result
		if result.Success {
			s.lastRunAt = s.now()
		}
		s.mu.Unlock()
	}()

	result = s.runLocked(ctx, s.logger.With("run", idgen.Run()))
	return result
}

func (s *Service) runLocked(ctx context.Context, logger *slog.Logger) RunResult {
	// Misconfiguration is rejected before any store or browser work.
	if s.cfg.Misconfigured() {
		logger.Error("sync misconfigured", "reason", "scraping enabled without SOURCE_URL")
		return RunResult{Success: false, Message: "misconfigured"}
	}

	start := s.now()
	events := s.gather(ctx)
	processed := s.rec.Apply(ctx, events)

	logger.Info("sync run complete",
		"candidates", len(events),
		"processed", processed,
		"elapsed", s.now().Sub(start).Round(time.Millisecond))
	return RunResult{Success: true, Processed: processed}
}

// gather produces the normalised events for this run: synthetic ones in
// mock mode, scraped ones when the browser is enabled, nothing
// otherwise.
func (s *Service) gather(ctx context.Context) []*parse.Event {
	if s.cfg.Mock() {
		events := MockEvents(s.now())
		s.logger.Info("using mock events", "count", len(events))
		return events
	}
	if !s.cfg.EnableScraping || s.fetcher == nil {
		s.logger.Info("scraping disabled, nothing to ingest")
		return nil
	}

	candidates := s.fetcher.Fetch(ctx)
	now := s.now()
	events := make([]*parse.Event, 0, len(candidates))
	for _, c := range candidates {
		ev, ok := parse.Normalise(c, now)
		if !ok {
			s.logger.Debug("candidate discarded", "text", firstLine(c.Text))
			continue
		}
		events = append(events, ev)
	}
	return events
}

// Status snapshots the run state and store counts.
func (s *Service) Status(ctx context.Context) (Status, error) {
	s.mu.Lock()
	st := Status{
		IsRunning:  s.running,
		LastResult: s.lastResult,
	}
	if !s.lastRunAt.IsZero() {
		st.LastRunAt = s.lastRunAt.UnixMilli()
	}
	s.mu.Unlock()

	counts, err := s.store.Counts(ctx)
	if err != nil {
		return st, err
	}
	st.TotalEvents = counts.Total
	st.ImportedEvents = counts.Imported
	if counts.Total > 0 {
		st.SyncPercentage = float64(counts.Imported) / float64(counts.Total) * 100
	}
	return st, nil
}

// TriggerManual runs the pipeline on demand with an audit log line. The
// semantics are identical to a scheduled run.
func (s *Service) TriggerManual(ctx context.Context) RunResult {
	s.logger.Info("manual sync triggered")
	return s.Run(ctx)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
