package identity

import (
	"errors"
	"fmt"
)

// Error kinds. Callers branch with errors.Is or the Is* helpers below.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// OpError attaches the failing store operation to a kind. Msg is a short
// human hint and never contains credentials.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	s := e.Op + ": " + e.Kind.Error()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

func (e OpError) Unwrap() error { return e.Kind }

// ConflictError names the unique field that was violated, e.g. "email".
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s: %v (%s)", e.Op, ErrConflict, cmpOr(e.Field, "unknown field"))
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing user.
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %v", e.Op, cmpOr(e.Resource, "row"), ErrNotFound)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }
func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

func cmpOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
