// Package notify fans sync outcomes out to subscribers. The reconciler
// hands it an intent per created or drifted event; the dispatcher looks
// up subscribers whose state preferences match and pushes a short text
// message through every configured sender.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mastersrl/carnivalsync/store"
)

// Intent kinds.
const (
	KindNew     = "new"
	KindUpdated = "updated"
)

// Intent is a single notification request.
type Intent struct {
	Kind  string // KindNew or KindUpdated
	Event *store.Event
}

// Message is the rendered notification handed to senders.
type Message struct {
	Subject string
	Body    string
	To      store.Subscriber
}

// Summary reports the outcome of one Notify call.
type Summary struct {
	Sent   int
	Failed int
}

// Sender delivers one rendered message. Implementations must be safe for
// concurrent use.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher matches intents to subscribers and fans out over senders.
type Dispatcher struct {
	store   *store.Store
	senders []Sender
	logger  *slog.Logger
}

// NewDispatcher builds a dispatcher. A nil logger falls back to the
// default; no senders means intents resolve to an empty summary.
func NewDispatcher(st *store.Store, logger *slog.Logger, senders ...Sender) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: st, senders: senders, logger: logger}
}

// Notify delivers one intent to every matching subscriber through every
// sender. Individual sender failures are counted and logged; the error
// return covers only the subscriber lookup.
func (d *Dispatcher) Notify(ctx context.Context, intent Intent) (Summary, error) {
	var sum Summary
	if intent.Event == nil {
		return sum, fmt.Errorf("notify: intent without event")
	}

	subs, err := d.store.SubscribersForState(ctx, intent.Event.State)
	if err != nil {
		return sum, fmt.Errorf("notify: list subscribers: %w", err)
	}
	if len(subs) == 0 || len(d.senders) == 0 {
		return sum, nil
	}

	for _, sub := range subs {
		msg := render(intent, *sub)
		for _, s := range d.senders {
			if err := s.Send(ctx, msg); err != nil {
				sum.Failed++
				d.logger.Warn("notification send failed",
					"sender", s.Name(),
					"subscriber", sub.ID,
					"event", intent.Event.ID,
					"error", err)
				continue
			}
			sum.Sent++
		}
	}
	return sum, nil
}

func render(intent Intent, sub store.Subscriber) Message {
	ev := intent.Event
	date := time.UnixMilli(ev.Date).Format("Monday 2 January 2006")

	var subject string
	switch intent.Kind {
	case KindUpdated:
		subject = fmt.Sprintf("Carnival updated: %s (%s)", ev.Title, ev.State)
	default:
		subject = fmt.Sprintf("New carnival: %s (%s)", ev.Title, ev.State)
	}

	body := fmt.Sprintf("Hi %s,\n\n%s is on %s at %s.", sub.Name, ev.Title, date, ev.Location)
	if ev.RegistrationURL != "" {
		body += fmt.Sprintf("\nRegister at %s", ev.RegistrationURL)
	}
	if ev.RegistrationDeadline != 0 {
		body += fmt.Sprintf("\nRegistrations close %s.",
			time.UnixMilli(ev.RegistrationDeadline).Format("2 January 2006"))
	}
	return Message{Subject: subject, Body: body, To: sub}
}
