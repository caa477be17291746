package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken is returned when an access token fails verification or validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidCredentials covers unknown email, inactive user and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized is returned when a refresh or logout cannot be attributed to a live session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRefreshNotFound is returned when no ledger row matches a refresh secret.
	ErrRefreshNotFound = errors.New("refresh token not found")

	// ErrRefreshNotLive is returned when the matching row is revoked or expired.
	ErrRefreshNotLive = errors.New("refresh token not live")

	// ErrRefreshReused is returned when an already rotated secret is presented again.
	ErrRefreshReused = errors.New("refresh token reuse detected")

	// ErrConflict is returned when registering an email that already exists.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput is returned for requests that fail basic shape checks.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// InfraError marks a storage or dependency failure. It is retryable and
// maps to a 5xx at the transport boundary.
type InfraError struct {
	Op  string
	Err error
}

func (e InfraError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e InfraError) Unwrap() error { return e.Err }

// IsInfra reports whether err is an InfraError.
func IsInfra(err error) bool {
	var ie InfraError
	return errors.As(err, &ie)
}

// IsUnauthorized reports whether err belongs to the 401 family.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrRefreshNotFound) ||
		errors.Is(err, ErrRefreshNotLive) ||
		errors.Is(err, ErrRefreshReused)
}

func infra(op string, err error) error {
	if err == nil {
		return nil
	}
	var ie InfraError
	if errors.As(err, &ie) {
		return err
	}
	return InfraError{Op: op, Err: err}
}
