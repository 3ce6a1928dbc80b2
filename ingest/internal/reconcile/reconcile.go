// Package reconcile merges normalised scrape results into the record
// store. Matching is by external id first, then a fuzzy title match;
// matched events receive enrichment-only updates so they never clobber
// fields a club owner has edited by hand.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mastersrl/carnivalsync/ingest/internal/parse"
	"github.com/mastersrl/carnivalsync/internal/idgen"
	"github.com/mastersrl/carnivalsync/notify"
	"github.com/mastersrl/carnivalsync/store"
)

// SystemUser marks records created by the sync pipeline rather than a
// person.
const SystemUser = "system-sync"

// Title prefix length used for the fuzzy match when no external id is
// available.
const fuzzyPrefixLen = 20

// RecordStore is the slice of the store the reconciler needs.
type RecordStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*store.Event, error)
	FindByTitlePrefix(ctx context.Context, prefix string, limit int) ([]*store.Event, error)
	Insert(ctx context.Context, ev *store.Event) error
	Enrich(ctx context.Context, id string, e store.Enrichment) error
}

// Notifier receives an intent per created or materially drifted event.
type Notifier interface {
	Notify(ctx context.Context, intent notify.Intent) (notify.Summary, error)
}

// Reconciler applies normalised events to the store one at a time, with
// a pacing delay between them.
type Reconciler struct {
	Store    RecordStore
	Notifier Notifier
	Delay    time.Duration
	Logger   *slog.Logger

	now func() time.Time
}

// New builds a reconciler. A nil notifier disables notifications; a nil
// logger falls back to the default.
func New(st RecordStore, n Notifier, delay time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{Store: st, Notifier: n, Delay: delay, Logger: logger}
}

// Apply reconciles events in order and returns how many were processed
// (created or updated). A store failure on one event is logged and the
// run continues; cancellation stops the remainder.
func (r *Reconciler) Apply(ctx context.Context, events []*parse.Event) int {
	processed := 0
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			r.Logger.Warn("reconcile interrupted", "remaining", len(events)-i, "error", err)
			return processed
		}

		if err := r.apply(ctx, ev); err != nil {
			r.Logger.Error("reconcile event failed", "title", ev.Title, "error", err)
		} else {
			processed++
		}

		// Pace store writes the way the scraper paces page loads; no
		// delay after the final event.
		if r.Delay > 0 && i < len(events)-1 {
			if err := sleepCtx(ctx, r.Delay); err != nil {
				return processed
			}
		}
	}
	return processed
}

func (r *Reconciler) apply(ctx context.Context, ev *parse.Event) error {
	existing, err := r.match(ctx, ev)
	if err != nil {
		return err
	}
	if existing != nil {
		return r.update(ctx, existing, ev)
	}

	created := r.toStored(ev)
	err = r.Store.Insert(ctx, created)
	if store.IsUniqueViolation(err) {
		// Another record claimed this external id between the lookup
		// and the insert. Treat it as found.
		existing, ferr := r.Store.FindByExternalID(ctx, ev.ExternalID)
		if ferr != nil {
			return fmt.Errorf("reconcile: refetch after conflict: %w", ferr)
		}
		if existing == nil {
			return fmt.Errorf("reconcile: insert conflict but no record for external id %q: %w", ev.ExternalID, err)
		}
		return r.update(ctx, existing, ev)
	}
	if err != nil {
		return fmt.Errorf("reconcile: insert %q: %w", ev.Title, err)
	}

	r.Logger.Info("event created", "id", created.ID, "title", created.Title, "state", created.State)
	r.notifyIntent(ctx, notify.KindNew, created)
	return nil
}

// match finds the stored event this scrape result refers to: external id
// when the source exposed one, otherwise the first stored event whose
// title contains the leading 20 characters of the candidate title.
func (r *Reconciler) match(ctx context.Context, ev *parse.Event) (*store.Event, error) {
	if ev.ExternalID != "" {
		found, err := r.Store.FindByExternalID(ctx, ev.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("reconcile: lookup external id %q: %w", ev.ExternalID, err)
		}
		if found != nil {
			return found, nil
		}
	}

	// Slice on runes so a multi-byte title character at the boundary
	// never produces an invalid-UTF-8 prefix.
	prefix := ev.Title
	if runes := []rune(prefix); len(runes) > fuzzyPrefixLen {
		prefix = string(runes[:fuzzyPrefixLen])
	}
	matches, err := r.Store.FindByTitlePrefix(ctx, prefix, 1)
	if err != nil {
		return nil, fmt.Errorf("reconcile: title lookup %q: %w", prefix, err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

// update applies the enrichment-only write: previously empty external
// id, registration url and schedule details, plus the sync stamp. Title,
// date and ownership are never written; when they differ materially from
// what the scrape produced, an "updated" intent is emitted instead.
func (r *Reconciler) update(ctx context.Context, existing *store.Event, ev *parse.Event) error {
	now := r.clock()
	err := r.Store.Enrich(ctx, existing.ID, store.Enrichment{
		ExternalID:      ev.ExternalID,
		RegistrationURL: ev.RegistrationURL,
		ScheduleDetails: ev.ScheduleDetails,
		SyncedAt:        now.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("reconcile: enrich %s: %w", existing.ID, err)
	}

	if r.drifted(existing, ev) {
		r.Logger.Info("event drift detected", "id", existing.ID, "title", existing.Title)
		r.notifyIntent(ctx, notify.KindUpdated, existing)
	} else {
		r.Logger.Debug("event enriched", "id", existing.ID, "title", existing.Title)
	}
	return nil
}

// drifted reports whether the scraped title, date or location disagree
// with what is stored. Defaulted dates are not drift: they say nothing
// about the real event.
func (r *Reconciler) drifted(existing *store.Event, ev *parse.Event) bool {
	if ev.Title != existing.Title {
		return true
	}
	if !ev.DateDefaulted && ev.Date.UnixMilli() != existing.Date {
		return true
	}
	if ev.Location != parse.DefaultLocation && ev.Location != existing.Location {
		return true
	}
	return false
}

func (r *Reconciler) toStored(ev *parse.Event) *store.Event {
	now := r.clock().UnixMilli()
	return &store.Event{
		ID:                   idgen.Event(),
		ExternalID:           ev.ExternalID,
		Title:                ev.Title,
		Date:                 ev.Date.UnixMilli(),
		State:                ev.State,
		Location:             ev.Location,
		ScheduleDetails:      ev.ScheduleDetails,
		RegistrationURL:      ev.RegistrationURL,
		ContactName:          ev.Contact.Name,
		ContactEmail:         ev.Contact.Email,
		ContactPhone:         ev.Contact.Phone,
		RegistrationDeadline: ev.RegistrationDeadline.UnixMilli(),
		AgeCategories:        ev.AgeCategories,
		MaxTeams:             ev.MaxTeams,
		RegistrationOpen:     ev.RegistrationOpen,
		ManuallyEntered:      false,
		CreatedBy:            SystemUser,
		LastSyncAt:           now,
		CreatedAt:            now,
		Active:               true,
	}
}

func (r *Reconciler) notifyIntent(ctx context.Context, kind string, ev *store.Event) {
	if r.Notifier == nil {
		return
	}
	sum, err := r.Notifier.Notify(ctx, notify.Intent{Kind: kind, Event: ev})
	if err != nil {
		r.Logger.Warn("notify failed", "kind", kind, "event", ev.ID, "error", err)
		return
	}
	if sum.Failed > 0 {
		r.Logger.Warn("notify partially failed", "kind", kind, "event", ev.ID, "sent", sum.Sent, "failed", sum.Failed)
	}
}

func (r *Reconciler) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
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
