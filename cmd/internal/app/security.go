package app

import (
	"errors"

	"livesupport/cmd/internal/auth/session"
)

// ValidateSecurityConfig enforces startup policy that the subsystems cannot
// judge on their own. It fails instead of falling back to weaker hashing.
func ValidateSecurityConfig(cfg Config, sess session.Config, ledger session.LedgerOptions) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}
	if len(sess.TokenHMACKey) == 0 {
		return errors.New("security policy: LIVESUPPORT_REQUIRE_TOKEN_HMAC=true but LIVESUPPORT_TOKEN_HMAC_KEY is missing")
	}
	if !ledger.Hasher.Keyed() {
		return errors.New("security policy: LIVESUPPORT_REQUIRE_TOKEN_HMAC=true but the refresh hasher is not in HMAC mode")
	}
	return nil
}
