package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mastersrl/carnivalsync/ingest/internal/parse"
	"github.com/mastersrl/carnivalsync/notify"
	"github.com/mastersrl/carnivalsync/store"
	_ "modernc.org/sqlite"
)

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.ApplySchema(db); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return store.New(db)
}

type fakeNotifier struct {
	intents []notify.Intent
	err     error
}

func (n *fakeNotifier) Notify(_ context.Context, intent notify.Intent) (notify.Summary, error) {
	n.intents = append(n.intents, intent)
	if n.err != nil {
		return notify.Summary{}, n.err
	}
	return notify.Summary{Sent: 1}, nil
}

func newReconciler(st RecordStore, n Notifier) *Reconciler {
	r := New(st, n, 0, testLogger())
	r.now = func() time.Time { return testNow }
	return r
}

func scrapedEvent(externalID, title string) *parse.Event {
	return &parse.Event{
		ExternalID:           externalID,
		Title:                title,
		Date:                 time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC),
		State:                "NSW",
		Location:             "Leichhardt Oval",
		ScheduleDetails:      "Games from 9am",
		RegistrationURL:      "https://src.example/event/9142",
		Contact:              parse.Contact{Name: "Carnival Organiser", Email: "tba@example.com", Phone: "TBA"},
		RegistrationDeadline: time.Date(2025, 7, 22, 0, 0, 0, 0, time.UTC),
		AgeCategories:        parse.DefaultAgeCategories(),
		MaxTeams:             parse.DefaultMaxTeams,
		RegistrationOpen:     true,
	}
}

// WHAT: an unseen event is created with pipeline provenance and emits a
// "new" notification.
func TestApplyCreatesNewEvent(t *testing.T) {
	st := openTestStore(t)
	n := &fakeNotifier{}
	r := newReconciler(st, n)

	processed := r.Apply(context.Background(), []*parse.Event{scrapedEvent("9142", "NSW Masters Carnival")})
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}

	stored, err := st.FindByExternalID(context.Background(), "9142")
	if err != nil || stored == nil {
		t.Fatalf("find: %v, %v", stored, err)
	}
	if stored.OwnerUserID != "" || stored.ManuallyEntered {
		t.Fatalf("created event must be unowned and not manual: %+v", stored)
	}
	if stored.CreatedBy != SystemUser {
		t.Fatalf("created_by = %q, want %q", stored.CreatedBy, SystemUser)
	}
	if !stored.Active || !stored.RegistrationOpen {
		t.Fatal("created event must be active with open registration")
	}
	if stored.LastSyncAt != testNow.UnixMilli() {
		t.Fatalf("last_sync_at = %d, want %d", stored.LastSyncAt, testNow.UnixMilli())
	}

	if len(n.intents) != 1 || n.intents[0].Kind != notify.KindNew {
		t.Fatalf("intents = %+v, want one new", n.intents)
	}
}

// WHAT: matching by external id triggers the enrichment-only update:
// empty fields fill in, hand-edited fields survive.
func TestApplyEnrichesByExternalID(t *testing.T) {
	st := openTestStore(t)
	existing := &store.Event{
		ID:         "evt_existing",
		ExternalID: "9142",
		Title:      "Winter Carnival (edited by owner)",
		Date:       time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		State:      "NSW",
		Location:   "Leichhardt Oval",
		CreatedBy:  "user_7",
		Active:     true,
	}
	if err := st.Insert(context.Background(), existing); err != nil {
		t.Fatalf("insert: %v", err)
	}

	n := &fakeNotifier{}
	r := newReconciler(st, n)

	processed := r.Apply(context.Background(), []*parse.Event{scrapedEvent("9142", "NSW Masters Carnival")})
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}

	got, _ := st.Get(context.Background(), "evt_existing")
	if got.Title != existing.Title {
		t.Fatalf("title overwritten: %q", got.Title)
	}
	if got.RegistrationURL != "https://src.example/event/9142" {
		t.Fatalf("registration url not filled: %q", got.RegistrationURL)
	}
	if got.ScheduleDetails != "Games from 9am" {
		t.Fatalf("schedule details not filled: %q", got.ScheduleDetails)
	}
	if got.LastSyncAt != testNow.UnixMilli() {
		t.Fatalf("last_sync_at = %d", got.LastSyncAt)
	}
}

// WHAT: with no external id, the first 20 characters of the title find
// the stored event; nothing new is created.
func TestApplyFuzzyTitleMatch(t *testing.T) {
	st := openTestStore(t)
	existing := &store.Event{
		ID:     "evt_existing",
		Title:  "NSW Masters Carnival 2025",
		Date:   time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC).UnixMilli(),
		State:  "NSW",
		Active: true,
	}
	if err := st.Insert(context.Background(), existing); err != nil {
		t.Fatalf("insert: %v", err)
	}

	r := newReconciler(st, &fakeNotifier{})
	ev := scrapedEvent("", "NSW Masters Carnival coming July")
	if r.Apply(context.Background(), []*parse.Event{ev}) != 1 {
		t.Fatal("want 1 processed")
	}

	events, _ := st.List(context.Background(), 10)
	if len(events) != 1 {
		t.Fatalf("got %d events, want the single enriched one", len(events))
	}
	if events[0].RegistrationURL != ev.RegistrationURL {
		t.Fatal("existing event was not enriched")
	}
}

// WHAT: the fuzzy prefix is the first 20 characters, not bytes, so a
// multi-byte title character at the boundary still matches.
func TestApplyFuzzyPrefixIsRuneSafe(t *testing.T) {
	st := openTestStore(t)
	existing := &store.Event{
		ID:     "evt_existing",
		Title:  "NSW Masters Galas Fête 2025",
		Date:   time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC).UnixMilli(),
		State:  "NSW",
		Active: true,
	}
	if err := st.Insert(context.Background(), existing); err != nil {
		t.Fatalf("insert: %v", err)
	}

	r := newReconciler(st, &fakeNotifier{})
	// Byte 20 falls inside the "ê"; a byte slice would send instr()
	// an invalid prefix and miss the stored row.
	ev := scrapedEvent("", "NSW Masters Galas Fête July 2025")
	if r.Apply(context.Background(), []*parse.Event{ev}) != 1 {
		t.Fatal("want 1 processed")
	}

	events, _ := st.List(context.Background(), 10)
	if len(events) != 1 {
		t.Fatalf("got %d events, want the single enriched one", len(events))
	}
	if events[0].RegistrationURL != ev.RegistrationURL {
		t.Fatal("existing event was not enriched")
	}
}

// WHAT: a claimed event keeps its owner through a sync pass; only the
// empty fields and the sync stamp change.
func TestApplyClaimedEventKeepsOwner(t *testing.T) {
	st := openTestStore(t)
	existing := &store.Event{
		ID:          "evt_claimed",
		ExternalID:  "9142",
		Title:       "NSW Masters Carnival",
		Date:        time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC).UnixMilli(),
		State:       "NSW",
		Location:    "Leichhardt Oval",
		OwnerUserID: "user_7",
		CreatedBy:   "user_7",
		Active:      true,
	}
	if err := st.Insert(context.Background(), existing); err != nil {
		t.Fatalf("insert: %v", err)
	}

	n := &fakeNotifier{}
	r := newReconciler(st, n)
	ev := scrapedEvent("9142", "NSW Masters Carnival")
	if r.Apply(context.Background(), []*parse.Event{ev}) != 1 {
		t.Fatal("want 1 processed")
	}

	stored, err := st.FindByExternalID(context.Background(), "9142")
	if err != nil || stored == nil {
		t.Fatalf("find: %v, %v", stored, err)
	}
	if stored.OwnerUserID != "user_7" || stored.CreatedBy != "user_7" {
		t.Fatalf("ownership must survive the sync: %+v", stored)
	}
	if stored.RegistrationURL != ev.RegistrationURL {
		t.Fatal("empty registration url was not filled")
	}
	if stored.LastSyncAt != testNow.UnixMilli() {
		t.Fatalf("last_sync_at = %d, want %d", stored.LastSyncAt, testNow.UnixMilli())
	}
	// Title and date agree with the scrape, so no drift notification.
	if len(n.intents) != 0 {
		t.Fatalf("intents = %+v, want none", n.intents)
	}
}

// WHAT: a scraped date that disagrees with the stored one emits an
// "updated" intent without writing the date.
func TestApplyDriftNotifiesWithoutWriting(t *testing.T) {
	st := openTestStore(t)
	storedDate := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	existing := &store.Event{
		ID:         "evt_existing",
		ExternalID: "9142",
		Title:      "NSW Masters Carnival",
		Date:       storedDate,
		State:      "NSW",
		Location:   "Leichhardt Oval",
		Active:     true,
	}
	if err := st.Insert(context.Background(), existing); err != nil {
		t.Fatalf("insert: %v", err)
	}

	n := &fakeNotifier{}
	r := newReconciler(st, n)
	r.Apply(context.Background(), []*parse.Event{scrapedEvent("9142", "NSW Masters Carnival")})

	got, _ := st.Get(context.Background(), "evt_existing")
	if got.Date != storedDate {
		t.Fatalf("date was written: %d", got.Date)
	}
	if len(n.intents) != 1 || n.intents[0].Kind != notify.KindUpdated {
		t.Fatalf("intents = %+v, want one updated", n.intents)
	}
}

// WHAT: a defaulted date never counts as drift even when it disagrees
// with the stored date.
func TestApplyDefaultedDateIsNotDrift(t *testing.T) {
	st := openTestStore(t)
	existing := &store.Event{
		ID:         "evt_existing",
		ExternalID: "9142",
		Title:      "NSW Masters Carnival",
		Date:       time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		State:      "NSW",
		Location:   "Leichhardt Oval",
		Active:     true,
	}
	if err := st.Insert(context.Background(), existing); err != nil {
		t.Fatalf("insert: %v", err)
	}

	n := &fakeNotifier{}
	r := newReconciler(st, n)
	ev := scrapedEvent("9142", "NSW Masters Carnival")
	ev.DateDefaulted = true
	ev.Location = parse.DefaultLocation
	r.Apply(context.Background(), []*parse.Event{ev})

	if len(n.intents) != 0 {
		t.Fatalf("intents = %+v, want none", n.intents)
	}
}

// conflictStore misses the initial external-id lookup so the insert hits
// the unique constraint, reproducing two sources racing on one id.
type conflictStore struct {
	*store.Store
	missedOnce bool
}

func (s *conflictStore) FindByExternalID(ctx context.Context, externalID string) (*store.Event, error) {
	if !s.missedOnce {
		s.missedOnce = true
		return nil, nil
	}
	return s.Store.FindByExternalID(ctx, externalID)
}

// WHAT: a unique violation on insert falls through to the update path
// instead of failing the event.
func TestApplyUniqueViolationFallsThroughToUpdate(t *testing.T) {
	st := openTestStore(t)
	// The stored title must not fuzzy-match, so the reconciler reaches
	// the insert and trips the unique constraint.
	existing := &store.Event{
		ID:         "evt_existing",
		ExternalID: "9142",
		Title:      "Winter Invitational",
		Date:       time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC).UnixMilli(),
		State:      "NSW",
		Location:   "Leichhardt Oval",
		Active:     true,
	}
	if err := st.Insert(context.Background(), existing); err != nil {
		t.Fatalf("insert: %v", err)
	}

	r := newReconciler(&conflictStore{Store: st}, &fakeNotifier{})
	if r.Apply(context.Background(), []*parse.Event{scrapedEvent("9142", "NSW Masters Carnival")}) != 1 {
		t.Fatal("want 1 processed")
	}

	got, _ := st.Get(context.Background(), "evt_existing")
	if got.RegistrationURL == "" {
		t.Fatal("conflicting event was not enriched")
	}
	events, _ := st.List(context.Background(), 10)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
}

// WHAT: notifier failures are swallowed; the event still counts as
// processed and later events still run.
func TestApplyNotifierErrorsDoNotAbort(t *testing.T) {
	st := openTestStore(t)
	n := &fakeNotifier{err: errors.New("smtp down")}
	r := newReconciler(st, n)

	events := []*parse.Event{
		scrapedEvent("1", "NSW Masters Carnival"),
		scrapedEvent("2", "QLD Masters Carnival"),
	}
	if got := r.Apply(context.Background(), events); got != 2 {
		t.Fatalf("processed = %d, want 2", got)
	}
	if len(n.intents) != 2 {
		t.Fatalf("intents = %d, want 2", len(n.intents))
	}
}

func TestApplyStopsOnCancelledContext(t *testing.T) {
	st := openTestStore(t)
	r := newReconciler(st, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := r.Apply(ctx, []*parse.Event{scrapedEvent("1", "NSW Masters Carnival")}); got != 0 {
		t.Fatalf("processed = %d, want 0", got)
	}
}

// WHAT: the pacing delay applies between events, not after the last, so
// a single event never waits.
func TestApplyNoDelayAfterLastEvent(t *testing.T) {
	st := openTestStore(t)
	r := New(st, nil, 5*time.Second, testLogger())
	r.now = func() time.Time { return testNow }

	done := make(chan int, 1)
	go func() {
		done <- r.Apply(context.Background(), []*parse.Event{scrapedEvent("1", "NSW Masters Carnival")})
	}()
	select {
	case got := <-done:
		if got != 1 {
			t.Fatalf("processed = %d, want 1", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("single-event apply blocked on the pacing delay")
	}
}
