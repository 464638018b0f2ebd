// Package uuid wraps github.com/google/uuid so callers deal in strings.
package uuid

import "github.com/google/uuid"

// New returns a random (version 4) UUID in canonical form.
func New() string {
	return uuid.NewString()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
