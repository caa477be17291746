package identity

import (
	"time"

	"livesupport/cmd/identity/ids"
)

// NewULID returns a new ULID (26-char string).
func NewULID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// ValidID reports whether s looks like an ID minted by NewULID.
func ValidID(s string) bool { return ids.Valid(s) }
