// Package id provides UUIDv7 generation for stored records.
// UUIDv7 is time-ordered, so string ids sort by creation time.
package id

import (
	"github.com/google/uuid"
)

// New generates a new UUIDv7 in canonical string form.
func New() string {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return v.String()
}

// Valid reports whether s is a well-formed UUID.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
