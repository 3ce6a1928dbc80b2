package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event is a stored carnival event. Imported events carry the external id
// assigned by the registration site; events entered by hand on the
// directory itself have ExternalID == "" and ManuallyEntered == true.
//
// ExternalID and OwnerUserID use "" as the null value and are persisted
// as SQL NULL so the UNIQUE constraint on external_id ignores them.
type Event struct {
	ID                   string   `json:"id"`
	ExternalID           string   `json:"externalId,omitempty"`
	Title                string   `json:"title"`
	Date                 int64    `json:"date"` // unix milli, midnight local
	State                string   `json:"state"`
	Location             string   `json:"location"`
	ScheduleDetails      string   `json:"scheduleDetails,omitempty"`
	RegistrationURL      string   `json:"registrationUrl,omitempty"`
	ContactName          string   `json:"contactName,omitempty"`
	ContactEmail         string   `json:"contactEmail,omitempty"`
	ContactPhone         string   `json:"contactPhone,omitempty"`
	RegistrationDeadline int64    `json:"registrationDeadline"` // unix milli
	AgeCategories        []string `json:"ageCategories"`
	MaxTeams             int      `json:"maxTeams"`
	RegistrationOpen     bool     `json:"registrationOpen"`
	OwnerUserID          string   `json:"ownerUserId,omitempty"`
	ManuallyEntered      bool     `json:"isManuallyEntered"`
	CreatedBy            string   `json:"createdBy"`
	LastSyncAt           int64    `json:"lastSyncAt"`
	CreatedAt            int64    `json:"createdAt"`
	Active               bool     `json:"isActive"`
}

// Enrichment is the partial update the reconciler is allowed to apply to
// an existing event: previously-empty fields only, plus the sync stamp.
type Enrichment struct {
	ExternalID      string
	RegistrationURL string
	ScheduleDetails string
	SyncedAt        int64
}

// Counts summarises the events table for the status endpoint.
type Counts struct {
	Total          int
	Imported       int
	LastImportedAt int64 // unix milli, zero when nothing imported
}

// Claim errors.
var (
	ErrAlreadyOwned = errors.New("store: event already owned")
	ErrNotImported  = errors.New("store: event was not imported")
	ErrNotFound     = errors.New("store: event not found")
)

const eventColumns = `id, external_id, title, date, state, location,
	schedule_details, registration_url, contact_name, contact_email,
	contact_phone, registration_deadline, age_categories, max_teams,
	registration_open, owner_user_id, manually_entered, created_by,
	last_sync_at, created_at, active`

// Insert adds a new event. ExternalID == "" is stored as NULL.
func (s *Store) Insert(ctx context.Context, ev *Event) error {
	now := time.Now().UnixMilli()
	if ev.CreatedAt == 0 {
		ev.CreatedAt = now
	}
	if ev.AgeCategories == nil {
		ev.AgeCategories = []string{}
	}
	cats, err := json.Marshal(ev.AgeCategories)
	if err != nil {
		return fmt.Errorf("store: marshal age categories: %w", err)
	}

	_, err = exec(ctx, s.DB,
		`INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, nullable(ev.ExternalID), ev.Title, ev.Date, ev.State, ev.Location,
		ev.ScheduleDetails, ev.RegistrationURL, ev.ContactName, ev.ContactEmail,
		ev.ContactPhone, ev.RegistrationDeadline, string(cats), ev.MaxTeams,
		ev.RegistrationOpen, nullable(ev.OwnerUserID), ev.ManuallyEntered,
		ev.CreatedBy, ev.LastSyncAt, ev.CreatedAt, ev.Active,
	)
	return err
}

// FindByExternalID returns the event with the given external id, or nil.
func (s *Store) FindByExternalID(ctx context.Context, externalID string) (*Event, error) {
	if externalID == "" {
		return nil, nil
	}
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE external_id = ?`, externalID)
	return scanEvent(row)
}

// FindByTitlePrefix returns active events whose title contains prefix as a
// case-sensitive substring, ordered by created_at then id so the fuzzy
// match in the reconciler is deterministic.
func (s *Store) FindByTitlePrefix(ctx context.Context, prefix string, limit int) ([]*Event, error) {
	if prefix == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	// LIKE is case-insensitive for ASCII in SQLite; instr() is not.
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE active = 1 AND instr(title, ?) > 0
		ORDER BY created_at, id LIMIT ?`, prefix, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev, err := scanEventRows(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Get returns an event by internal id, or nil.
func (s *Store) Get(ctx context.Context, id string) (*Event, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

// List returns the most recently created active events, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE active = 1 ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev, err := scanEventRows(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Enrich fills previously-empty fields and stamps last_sync_at. Non-empty
// stored values are never overwritten; title, date and ownership are not
// touched at all.
func (s *Store) Enrich(ctx context.Context, id string, e Enrichment) error {
	res, err := exec(ctx, s.DB,
		`UPDATE events SET
			external_id      = COALESCE(external_id, NULLIF(?, '')),
			registration_url = CASE WHEN registration_url = '' THEN ? ELSE registration_url END,
			schedule_details = CASE WHEN schedule_details = '' THEN ? ELSE schedule_details END,
			last_sync_at     = ?
		WHERE id = ?`,
		e.ExternalID, e.RegistrationURL, e.ScheduleDetails, e.SyncedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchSync updates only last_sync_at.
func (s *Store) TouchSync(ctx context.Context, id string, at int64) error {
	_, err := exec(ctx, s.DB, `UPDATE events SET last_sync_at = ? WHERE id = ?`, at, id)
	return err
}

// Claim transfers an imported event to a user. The event must have an
// external id (i.e. actually be imported) and must not already be owned.
// Claiming flips manually_entered so subsequent syncs stop overwriting.
func (s *Store) Claim(ctx context.Context, id, userID string) error {
	ev, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if ev == nil {
		return ErrNotFound
	}
	if ev.ExternalID == "" {
		return ErrNotImported
	}
	if ev.OwnerUserID != "" {
		return ErrAlreadyOwned
	}
	_, err = exec(ctx, s.DB,
		`UPDATE events SET owner_user_id = ?, manually_entered = 1
		WHERE id = ? AND owner_user_id IS NULL`, userID, id)
	return err
}

// Deactivate soft-deletes an event. The sync pipeline never calls this;
// it exists for the directory's own administration.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	_, err := exec(ctx, s.DB, `UPDATE events SET active = 0 WHERE id = ?`, id)
	return err
}

// Counts returns totals for the status endpoint.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(external_id),
		       COALESCE(MAX(CASE WHEN external_id IS NOT NULL THEN created_at END), 0)
		FROM events WHERE active = 1`).Scan(&c.Total, &c.Imported, &c.LastImportedAt)
	return c, err
}

// LatestImported returns the most recently synced event that has an
// external id, or nil when nothing has been imported yet. The bootstrap
// trigger uses last_sync_at for its freshness check.
func (s *Store) LatestImported(ctx context.Context) (*Event, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE external_id IS NOT NULL
		ORDER BY last_sync_at DESC, id LIMIT 1`)
	return scanEvent(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row *sql.Row) (*Event, error) {
	ev, err := scanEventRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ev, err
}

func scanEventRows(row rowScanner) (*Event, error) {
	var ev Event
	var externalID, ownerUserID sql.NullString
	var cats string
	err := row.Scan(&ev.ID, &externalID, &ev.Title, &ev.Date, &ev.State,
		&ev.Location, &ev.ScheduleDetails, &ev.RegistrationURL,
		&ev.ContactName, &ev.ContactEmail, &ev.ContactPhone,
		&ev.RegistrationDeadline, &cats, &ev.MaxTeams, &ev.RegistrationOpen,
		&ownerUserID, &ev.ManuallyEntered, &ev.CreatedBy, &ev.LastSyncAt,
		&ev.CreatedAt, &ev.Active)
	if err != nil {
		return nil, err
	}
	ev.ExternalID = externalID.String
	ev.OwnerUserID = ownerUserID.String
	if err := json.Unmarshal([]byte(cats), &ev.AgeCategories); err != nil {
		// Malformed rows keep working with no categories.
		ev.AgeCategories = nil
	}
	return &ev, nil
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
