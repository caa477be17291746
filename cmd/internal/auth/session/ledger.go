package session

import (
	"context"
	"strings"
	"time"
)

// State is the lifecycle position of a ledger row at a given instant.
type State string

const (
	StateLive    State = "live"
	StateRotated State = "rotated"
	StateRevoked State = "revoked"
	StateExpired State = "expired"
)

// RefreshToken mirrors a refresh_tokens row. Only the hash of the secret is kept.
type RefreshToken struct {
	ID             string
	UserID         string
	TokenHash      string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	RevokedAt      *time.Time
	ReplacedByHash *string
	OriginAddr     *string
	ClientAgent    *string
}

// State derives the row's state at now. Revocation wins over expiry; expiry
// is observed lazily and never written.
func (r RefreshToken) State(now time.Time) State {
	switch {
	case r.RevokedAt != nil && r.ReplacedByHash != nil:
		return StateRotated
	case r.RevokedAt != nil:
		return StateRevoked
	case !r.ExpiresAt.After(now):
		return StateExpired
	default:
		return StateLive
	}
}

// Live reports whether the row can still be exchanged at now.
func (r RefreshToken) Live(now time.Time) bool { return r.State(now) == StateLive }

// IssueMeta is advisory client context recorded with each row.
type IssueMeta struct {
	OriginAddr  string
	ClientAgent string
}

// RotateResult reports what Rotate did to the presented secret's row.
type RotateResult struct {
	// Replaced is true when a live row for the old secret was found and
	// marked rotated. The successor row is appended either way unless
	// strict rotation is on.
	Replaced bool
	New      RefreshToken
}

// Ledger is the append-only store of refresh-token rows.
//
// Rows are never deleted. Rotate, Exchange and RevokeAll are atomic with
// respect to each other.
type Ledger interface {
	// Store appends a live row for rawSecret expiring at now+ttl.
	Store(ctx context.Context, now time.Time, userID, rawSecret string, ttl time.Duration, meta IssueMeta) (RefreshToken, error)

	// IsValid reports whether (userID, hash(rawSecret)) names a live row.
	IsValid(ctx context.Context, now time.Time, userID, rawSecret string) (bool, error)

	// Rotate marks the live row for oldRaw as rotated (if any) and appends a
	// row for newRaw with the rotation TTL.
	Rotate(ctx context.Context, now time.Time, userID, oldRaw, newRaw string) (RotateResult, error)

	// RevokeAll revokes every live row of userID and returns how many it touched.
	RevokeAll(ctx context.Context, now time.Time, userID string) (int64, error)

	// Lookup returns the row for rawSecret whatever its state.
	Lookup(ctx context.Context, rawSecret string) (RefreshToken, error)

	// Exchange rotates oldRaw to newRaw only if oldRaw is live, keyed by hash
	// alone. Concurrent exchanges of one secret produce exactly one successor.
	Exchange(ctx context.Context, now time.Time, oldRaw, newRaw string, ttl time.Duration, meta IssueMeta) (RefreshToken, error)

	// Lineage returns the rotation chain from rawSecret's row to its newest successor.
	Lineage(ctx context.Context, userID, rawSecret string) ([]RefreshToken, error)
}

// maxSecretLen bounds inputs before hashing.
const maxSecretLen = 4096

// cleanSecret accepts raw verbatim. Surrounding whitespace is rejected rather
// than trimmed so two distinct inputs never hash to the same row.
func cleanSecret(raw string) (string, bool) {
	if raw == "" || len(raw) > maxSecretLen || strings.TrimSpace(raw) != raw {
		return "", false
	}
	return raw, true
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func metaOf(r RefreshToken) IssueMeta {
	var m IssueMeta
	if r.OriginAddr != nil {
		m.OriginAddr = *r.OriginAddr
	}
	if r.ClientAgent != nil {
		m.ClientAgent = *r.ClientAgent
	}
	return m
}
