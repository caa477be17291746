package password

import (
	"errors"
	"fmt"
)

// ErrPolicy is wrapped by every policy rejection.
var ErrPolicy = errors.New("password policy")

var (
	ErrPasswordTooShort = fmt.Errorf("%w: too short", ErrPolicy)
	ErrPasswordTooLong  = fmt.Errorf("%w: too long", ErrPolicy)
	ErrWeakPassword     = fmt.Errorf("%w: too weak", ErrPolicy)

	ErrInvalidHash = errors.New("invalid password hash")
)

// IsPolicy reports whether err is a policy rejection rather than a failure.
func IsPolicy(err error) bool { return errors.Is(err, ErrPolicy) }
