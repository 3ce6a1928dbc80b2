package ingest

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/mastersrl/carnivalsync/ingest/internal/parse"
)

// MockEvents returns one plausible carnival per seeded state. Mocks
// satisfy every normalised-event invariant so they flow through the
// reconciler exactly like scraped events; development deployments run on
// them instead of a headless browser.
func MockEvents(now time.Time) []*parse.Event {
	states := []string{"NSW", "QLD", "VIC"}
	rng := rand.New(rand.NewSource(now.UnixNano()))

	events := make([]*parse.Event, 0, len(states))
	for _, state := range states {
		date := now.AddDate(0, 0, 30+rng.Intn(91)) // 30..120 days out
		events = append(events, &parse.Event{
			ExternalID:      fmt.Sprintf("mock-%s-%d", strings.ToLower(state), now.Unix()),
			Title:           fmt.Sprintf("%s Masters Rugby League Carnival", state),
			Date:            date,
			State:           state,
			Location:        "TBA",
			ScheduleDetails: fmt.Sprintf("Round-robin pools from 9am, finals mid-afternoon. Hosted in %s.", state),
			Contact: parse.Contact{
				Name:  "Carnival Organiser",
				Email: "tba@example.com",
				Phone: "TBA",
			},
			RegistrationDeadline: date.AddDate(0, 0, 7),
			AgeCategories:        parse.DefaultAgeCategories(),
			MaxTeams:             parse.DefaultMaxTeams,
			RegistrationOpen:     true,
		})
	}
	return events
}
