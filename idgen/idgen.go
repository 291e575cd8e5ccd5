// Package idgen provides pluggable ID generation.
//
// Constructors across the repo accept a Generator, making the ID strategy
// a startup-time decision rather than a compile-time one. Typed
// identifiers compose Prefixed over the default ("evt_", "run_").
package idgen

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// Default is the repo-wide generator: RFC 9562 UUID v7, time-sortable.
var Default Generator = UUIDv7()

// New produces an ID with the Default generator.
func New() string { return Default() }

// NanoID generates short base-36 IDs of the given length: URL-safe and
// cheap, for places where a UUID is too verbose (session keys, stream
// tags).
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		// Remap the random bytes onto the alphabet in place.
		for i, c := range buf {
			buf[i] = alphabet[int(c)%len(alphabet)]
		}
		return string(buf)
	}
}

// UUIDv7 generates RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string { return uuid.Must(uuid.NewV7()).String() }
}

// Prefixed prepends a fixed type tag to every ID from gen, e.g.
// Prefixed("evt_", Default).
func Prefixed(prefix string, gen Generator) Generator {
	return func() string { return prefix + gen() }
}

// Timestamped prefixes IDs with a compact UTC timestamp,
// "20060102T150405Z_<id>", so lexical order follows creation order even
// for non-sortable inner generators.
func Timestamped(gen Generator) Generator {
	return func() string {
		return time.Now().UTC().Format("20060102T150405Z") + "_" + gen()
	}
}

// Parse checks that s is a well-formed UUID and returns its canonical form.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID: %w", err)
	}
	return u.String(), nil
}

// MustParse is Parse that panics on malformed input.
func MustParse(s string) string {
	_ = uuid.MustParse(s)
	return s
}
