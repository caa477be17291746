// Package identity holds LiveSupport's user records: the credential store
// consulted by login and refresh, and the error kinds callers map to API
// status codes.
//
// Passwords arrive here already hashed; this package never sees plaintext.
package identity
