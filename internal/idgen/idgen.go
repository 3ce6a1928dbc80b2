// Package idgen produces the identifiers used across carnivalsync.
// Events and sync runs use prefixed UUIDv7 so ids sort by creation time.
package idgen

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator producing RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends a fixed type prefix to every id from gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Type-scoped generators.
var (
	Event      Generator = Prefixed("evt_", UUIDv7())
	Run        Generator = Prefixed("run_", UUIDv7())
	Subscriber Generator = Prefixed("sub_", UUIDv7())
)
