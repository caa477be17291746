package session

import (
	"time"

	"livesupport/cmd/identity"
)

// AccessClaims is the fixed identity envelope carried by access tokens.
// It is never persisted.
type AccessClaims struct {
	Subject   string
	Name      string
	Email     string
	Role      identity.Role
	Issuer    string
	Audience  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Subject is the user data stamped into a new access token.
type Subject struct {
	ID    string
	Name  string
	Email string
	Role  identity.Role
}

// SubjectOf projects a user onto the token claim set.
func SubjectOf(u identity.User) Subject {
	return Subject{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// AccessTokenManager issues and verifies short-lived access tokens.
//
// Verify checks signature, issuer, audience and expiry with zero clock skew:
// a token is valid only while now is strictly before its expiry.
type AccessTokenManager interface {
	Issue(sub Subject, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (AccessClaims, error)
}

// NewAccessTokenManager builds the manager selected by cfg.TokenFormat.
func NewAccessTokenManager(cfg Config) (AccessTokenManager, error) {
	switch cfg.TokenFormat {
	case FormatPASETO, "":
		return NewPasetoV4PublicManager(cfg)
	case FormatJWT:
		return NewJWTHS256Manager(cfg)
	default:
		return nil, configErr("token format")
	}
}

// Token timestamps have whole-second precision on the wire; issuing from a
// truncated clock keeps the verified claims identical to what was issued.
func tokenNow(now time.Time) time.Time {
	return now.UTC().Truncate(time.Second)
}
