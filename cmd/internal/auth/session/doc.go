// Package session implements LiveSupport's login session core.
//
// Access tokens are short-lived signed tokens (PASETO v4.public by default,
// JWT HS256 when configured) carrying a fixed claim set. Refresh secrets are
// opaque random strings; only their hash is stored, in an append-only ledger
// where each rotation links the old row to its successor.
//
// Service orchestrates register, login, refresh and logout on top of the
// identity store, the password pool, the token manager and the ledger.
// Transport concerns (cookies, headers, status codes) live in package authapi.
package session
