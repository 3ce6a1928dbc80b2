package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestEventIDs(t *testing.T) {
	a, b := Event(), Event()
	if a == b {
		t.Fatal("ids must be unique")
	}
	for _, id := range []string{a, b} {
		if !strings.HasPrefix(id, "evt_") {
			t.Fatalf("id %q lacks evt_ prefix", id)
		}
		if _, err := uuid.Parse(strings.TrimPrefix(id, "evt_")); err != nil {
			t.Fatalf("id %q is not a UUID: %v", id, err)
		}
	}
}

// WHAT: UUIDv7 ids generated later sort later, which keeps id a usable
// tiebreaker in created_at ordering.
func TestUUIDv7Sortable(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for range 50 {
		next := gen()
		if next < prev {
			t.Fatalf("ids out of order: %q then %q", prev, next)
		}
		prev = next
	}
}
