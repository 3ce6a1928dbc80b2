// Package parse extracts carnival fields from the raw text and markup of
// scraped page candidates. All functions are pure and deterministic: they
// never error out, returning zero values or defaults instead, so a bad
// candidate degrades to a discard rather than aborting a sync run.
package parse

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Candidate is the transient output of the browser driver: one DOM element
// that looked like it might describe a carnival. It never escapes the
// ingestion pipeline.
type Candidate struct {
	Text   string // visible text, newline-separated lines
	Markup string // bounded inner HTML for heuristic re-parsing
	Href   string // first link found inside the element, may be empty
	Score  int    // relevance score, used only for ranking upstream
}

// Contact is the organiser contact block with placeholder defaults.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Event is a normalised carnival event, the only shape downstream code
// consumes.
type Event struct {
	ExternalID           string
	Title                string
	Date                 time.Time
	DateDefaulted        bool
	State                string
	Location             string
	ScheduleDetails      string
	RegistrationURL      string
	Contact              Contact
	RegistrationDeadline time.Time
	AgeCategories        []string
	MaxTeams             int
	RegistrationOpen     bool
}

// Defaults applied when a field cannot be parsed.
const (
	DefaultState    = "NSW"
	DefaultLocation = "TBA"
	DefaultMaxTeams = 16
	minTitleRunes   = 5
)

// DefaultAgeCategories returns the standard masters age brackets.
func DefaultAgeCategories() []string {
	return []string{"35+", "40+", "45+", "50+"}
}

// Normalise builds an Event from a scraped candidate. It returns false
// when the candidate cannot yield a usable event (title shorter than five
// runes after trimming); such candidates are discarded before
// reconciliation.
func Normalise(c Candidate, now time.Time) (*Event, bool) {
	lines := SplitLines(c.Text)

	title := Title(lines)

	var date time.Time
	var haveDate bool
	if clean, d, ok := TitleDate(title); ok {
		title, date, haveDate = clean, d, true
	}
	if !haveDate {
		date, haveDate = Date(lines)
	}

	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) < minTitleRunes {
		return nil, false
	}

	dateDefaulted := !haveDate
	if dateDefaulted {
		date = now.AddDate(0, 0, 30)
	}

	deadline := date.AddDate(0, 0, 7)
	if dateDefaulted {
		deadline = now.AddDate(0, 0, 23)
	}

	state := State(c.Text)
	if state == "" {
		state = DefaultState
	}

	location := Location(lines)
	if location == "" {
		location = DefaultLocation
	}

	details := ScheduleDetails(c.Markup)
	if details == "" {
		details = truncate(collapseSpace(c.Text), maxDetailChars)
	}

	email, phone := ContactDetails(c.Text)
	contact := Contact{Name: "Carnival Organiser", Email: email, Phone: phone}
	if contact.Email == "" {
		contact.Email = "tba@example.com"
	}
	if contact.Phone == "" {
		contact.Phone = "TBA"
	}

	var regURL string
	if isHTTPURL(c.Href) {
		regURL = c.Href
	}

	return &Event{
		ExternalID:           ExternalID(c.Href),
		Title:                title,
		Date:                 date,
		DateDefaulted:        dateDefaulted,
		State:                state,
		Location:             location,
		ScheduleDetails:      details,
		RegistrationURL:      regURL,
		Contact:              contact,
		RegistrationDeadline: deadline,
		AgeCategories:        DefaultAgeCategories(),
		MaxTeams:             DefaultMaxTeams,
		RegistrationOpen:     true,
	}, true
}

// SplitLines splits raw candidate text into trimmed, non-empty lines.
func SplitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
