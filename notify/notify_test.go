package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mastersrl/carnivalsync/internal/idgen"
	"github.com/mastersrl/carnivalsync/store"
	_ "modernc.org/sqlite"
)

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

func addSubscriber(t *testing.T, st *store.Store, name string, states ...string) *store.Subscriber {
	t.Helper()
	sub := &store.Subscriber{
		ID:     idgen.Subscriber(),
		Name:   name,
		Email:  strings.ToLower(name) + "@example.com",
		States: states,
		Active: true,
	}
	if err := st.InsertSubscriber(context.Background(), sub); err != nil {
		t.Fatalf("insert subscriber: %v", err)
	}
	return sub
}

type recordingSender struct {
	name string
	sent []Message
	err  error
}

func (s *recordingSender) Name() string { return s.name }

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func testEvent() *store.Event {
	return &store.Event{
		ID:                   "evt_1",
		Title:                "NSW Masters Carnival",
		State:                "NSW",
		Location:             "Leichhardt Oval",
		Date:                 time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC).UnixMilli(),
		RegistrationDeadline: time.Date(2025, 7, 22, 0, 0, 0, 0, time.UTC).UnixMilli(),
		RegistrationURL:      "https://src.example/event/9142",
		Active:               true,
	}
}

// WHAT: only subscribers whose preferences include the event's state are
// notified.
func TestNotifyFiltersByState(t *testing.T) {
	st := openTestStore(t)
	addSubscriber(t, st, "Alice", "NSW", "QLD")
	addSubscriber(t, st, "Bob", "VIC")
	inactive := &store.Subscriber{ID: idgen.Subscriber(), Name: "Carol", Email: "carol@example.com", States: []string{"NSW"}}
	if err := st.InsertSubscriber(context.Background(), inactive); err != nil {
		t.Fatalf("insert: %v", err)
	}

	sender := &recordingSender{name: "test"}
	d := NewDispatcher(st, testLogger(), sender)

	sum, err := d.Notify(context.Background(), Intent{Kind: KindNew, Event: testEvent()})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if sum.Sent != 1 || sum.Failed != 0 {
		t.Fatalf("summary = %+v, want 1 sent 0 failed", sum)
	}
	if got := sender.sent[0].To.Name; got != "Alice" {
		t.Fatalf("sent to %q, want Alice", got)
	}
}

// WHAT: one failing sender is counted, not fatal, and does not stop the
// other sender from delivering.
func TestNotifyCountsSenderFailures(t *testing.T) {
	st := openTestStore(t)
	addSubscriber(t, st, "Alice", "NSW")

	good := &recordingSender{name: "good"}
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	d := NewDispatcher(st, testLogger(), bad, good)

	sum, err := d.Notify(context.Background(), Intent{Kind: KindNew, Event: testEvent()})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if sum.Sent != 1 || sum.Failed != 1 {
		t.Fatalf("summary = %+v, want 1 sent 1 failed", sum)
	}
	if len(good.sent) != 1 {
		t.Fatalf("good sender got %d messages, want 1", len(good.sent))
	}
}

func TestNotifyNoSubscribers(t *testing.T) {
	st := openTestStore(t)
	sender := &recordingSender{name: "test"}
	d := NewDispatcher(st, testLogger(), sender)

	sum, err := d.Notify(context.Background(), Intent{Kind: KindNew, Event: testEvent()})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if sum.Sent != 0 || sum.Failed != 0 {
		t.Fatalf("summary = %+v, want zeroes", sum)
	}
}

func TestNotifyNilEvent(t *testing.T) {
	d := NewDispatcher(openTestStore(t), testLogger())
	if _, err := d.Notify(context.Background(), Intent{Kind: KindNew}); err == nil {
		t.Fatal("want error for nil event")
	}
}

func TestRenderSubjects(t *testing.T) {
	sub := store.Subscriber{Name: "Alice"}

	msg := render(Intent{Kind: KindNew, Event: testEvent()}, sub)
	if !strings.HasPrefix(msg.Subject, "New carnival:") {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "Leichhardt Oval") {
		t.Fatalf("body missing location: %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "https://src.example/event/9142") {
		t.Fatalf("body missing url: %q", msg.Body)
	}

	msg = render(Intent{Kind: KindUpdated, Event: testEvent()}, sub)
	if !strings.HasPrefix(msg.Subject, "Carnival updated:") {
		t.Fatalf("subject = %q", msg.Subject)
	}
}

// WHAT: the webhook sender posts signed JSON and treats non-2xx as an
// error.
func TestWebhookSender(t *testing.T) {
	const secret = "hmac_key"
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature-256")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := &WebhookSender{URL: srv.URL, Secret: secret, Client: srv.Client()}
	msg := Message{Subject: "New carnival: test", Body: "body", To: store.Subscriber{ID: "sub1", Email: "a@example.com"}}
	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Fatalf("signature = %q, want %q", gotSig, want)
	}
}

func TestWebhookSenderRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := &WebhookSender{URL: srv.URL, Client: srv.Client()}
	if err := s.Send(context.Background(), Message{Subject: "s"}); err == nil {
		t.Fatal("want error for 502")
	}
}
