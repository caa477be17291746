// Package token provides refresh-secret primitives for LiveSupport.
//
// It is the single source of truth for refresh-token hashing behavior.
//
// - Default mode: SHA-256(secret) as lowercase hex.
// - Keyed mode: HMAC-SHA256(secret, key) when a key is configured.
// - Secrets are opaque random strings, never structured tokens.
package token
