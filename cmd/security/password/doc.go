// Package password provides password hashing and verification for LiveSupport.
//
// It implements Argon2id hashing using a PHC-like encoded string format and includes:
// - Configurable Argon2id parameters (via environment variables)
// - Password policy validation
// - Strict hash decoding and verification with anti-DoS bounds
// - A bounded Pool that keeps CPU-heavy hashing off the request fast path
//
// Security notes:
// - Hash strings are treated as untrusted input during Verify and are validated accordingly.
// - Verify never reports an error for malformed digests; it simply does not match.
package password
