package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"livesupport/cmd/identity"
	"livesupport/cmd/security/token"
)

// LedgerOptions configures either ledger implementation.
type LedgerOptions struct {
	Hasher         token.Hasher
	RotationTTL    time.Duration
	StrictRotation bool
}

// LedgerOptionsFrom derives ledger options from the session config.
func LedgerOptionsFrom(cfg Config) (LedgerOptions, error) {
	h, err := token.NewHasher(cfg.TokenHMACKey)
	if err != nil {
		return LedgerOptions{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return LedgerOptions{
		Hasher:         h,
		RotationTTL:    cfg.RotationTTL,
		StrictRotation: cfg.StrictRotation,
	}, nil
}

func (o LedgerOptions) rotationTTL(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	if o.RotationTTL > 0 {
		return o.RotationTTL
	}
	return DefaultConfig().RotationTTL
}

// MemoryLedger is an in-process Ledger. A single mutex serializes every
// operation, which gives the same atomicity the Postgres ledger gets from
// row locks.
type MemoryLedger struct {
	opts LedgerOptions

	mu     sync.Mutex
	rows   []RefreshToken
	byHash map[string]int
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger(opts LedgerOptions) *MemoryLedger {
	return &MemoryLedger{opts: opts, byHash: make(map[string]int)}
}

func (l *MemoryLedger) Store(ctx context.Context, now time.Time, userID, rawSecret string, ttl time.Duration, meta IssueMeta) (RefreshToken, error) {
	raw, ok := cleanSecret(rawSecret)
	if !ok || userID == "" || ttl <= 0 {
		return RefreshToken{}, ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.appendLocked(now, userID, l.opts.Hasher.Hash(raw), ttl, meta)
}

func (l *MemoryLedger) IsValid(ctx context.Context, now time.Time, userID, rawSecret string) (bool, error) {
	raw, ok := cleanSecret(rawSecret)
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r, found := l.findLocked(l.opts.Hasher.Hash(raw))
	return found && r.UserID == userID && r.Live(now), nil
}

func (l *MemoryLedger) Rotate(ctx context.Context, now time.Time, userID, oldRaw, newRaw string) (RotateResult, error) {
	newSecret, ok := cleanSecret(newRaw)
	if !ok || userID == "" {
		return RotateResult{}, ErrInvalidInput
	}
	newHash := l.opts.Hasher.Hash(newSecret)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.byHash[newHash]; dup {
		return RotateResult{}, fmt.Errorf("%w: refresh token hash", ErrConflict)
	}

	var (
		res  RotateResult
		meta IssueMeta
	)
	if oldSecret, ok := cleanSecret(oldRaw); ok {
		if i, found := l.byHash[l.opts.Hasher.Hash(oldSecret)]; found {
			r := &l.rows[i]
			if r.UserID == userID && r.Live(now) {
				markRotated(r, now, newHash)
				res.Replaced = true
				meta = metaOf(*r)
			}
		}
	}
	if !res.Replaced && l.opts.StrictRotation {
		return RotateResult{}, ErrRefreshNotLive
	}

	row, err := l.appendLocked(now, userID, newHash, l.opts.rotationTTL(0), meta)
	if err != nil {
		return RotateResult{}, err
	}
	res.New = row
	return res, nil
}

func (l *MemoryLedger) RevokeAll(ctx context.Context, now time.Time, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int64
	for i := range l.rows {
		r := &l.rows[i]
		if r.UserID == userID && r.Live(now) {
			t := now
			r.RevokedAt = &t
			n++
		}
	}
	return n, nil
}

func (l *MemoryLedger) Lookup(ctx context.Context, rawSecret string) (RefreshToken, error) {
	raw, ok := cleanSecret(rawSecret)
	if !ok {
		return RefreshToken{}, ErrRefreshNotFound
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r, found := l.findLocked(l.opts.Hasher.Hash(raw))
	if !found {
		return RefreshToken{}, ErrRefreshNotFound
	}
	return r, nil
}

func (l *MemoryLedger) Exchange(ctx context.Context, now time.Time, oldRaw, newRaw string, ttl time.Duration, meta IssueMeta) (RefreshToken, error) {
	oldSecret, ok := cleanSecret(oldRaw)
	if !ok {
		return RefreshToken{}, ErrRefreshNotFound
	}
	newSecret, ok := cleanSecret(newRaw)
	if !ok {
		return RefreshToken{}, ErrInvalidInput
	}
	newHash := l.opts.Hasher.Hash(newSecret)

	l.mu.Lock()
	defer l.mu.Unlock()

	i, found := l.byHash[l.opts.Hasher.Hash(oldSecret)]
	if !found {
		return RefreshToken{}, ErrRefreshNotFound
	}
	r := &l.rows[i]
	if err := exchangeable(*r, now); err != nil {
		return RefreshToken{}, err
	}
	if _, dup := l.byHash[newHash]; dup {
		return RefreshToken{}, fmt.Errorf("%w: refresh token hash", ErrConflict)
	}
	if meta == (IssueMeta{}) {
		meta = metaOf(*r)
	}
	userID := r.UserID
	markRotated(r, now, newHash)

	return l.appendLocked(now, userID, newHash, l.opts.rotationTTL(ttl), meta)
}

func (l *MemoryLedger) Lineage(ctx context.Context, userID, rawSecret string) ([]RefreshToken, error) {
	raw, ok := cleanSecret(rawSecret)
	if !ok {
		return nil, ErrRefreshNotFound
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r, found := l.findLocked(l.opts.Hasher.Hash(raw))
	if !found || r.UserID != userID {
		return nil, ErrRefreshNotFound
	}

	chain := []RefreshToken{r}
	for r.ReplacedByHash != nil && len(chain) <= len(l.rows) {
		next, ok := l.findLocked(*r.ReplacedByHash)
		if !ok || next.UserID != userID {
			break
		}
		chain = append(chain, next)
		r = next
	}
	return chain, nil
}

// Rows returns a snapshot of every row, oldest first.
func (l *MemoryLedger) Rows() []RefreshToken {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]RefreshToken, len(l.rows))
	copy(out, l.rows)
	return out
}

func (l *MemoryLedger) findLocked(hash string) (RefreshToken, bool) {
	i, ok := l.byHash[hash]
	if !ok {
		return RefreshToken{}, false
	}
	return l.rows[i], true
}

func (l *MemoryLedger) appendLocked(now time.Time, userID, hash string, ttl time.Duration, meta IssueMeta) (RefreshToken, error) {
	if _, dup := l.byHash[hash]; dup {
		return RefreshToken{}, fmt.Errorf("%w: refresh token hash", ErrConflict)
	}
	id, err := identity.NewULID(now)
	if err != nil {
		return RefreshToken{}, err
	}
	r := RefreshToken{
		ID:          id,
		UserID:      userID,
		TokenHash:   hash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		OriginAddr:  optString(meta.OriginAddr),
		ClientAgent: optString(meta.ClientAgent),
	}
	l.rows = append(l.rows, r)
	l.byHash[hash] = len(l.rows) - 1
	return r, nil
}

func markRotated(r *RefreshToken, now time.Time, newHash string) {
	t := now
	h := newHash
	r.RevokedAt = &t
	r.ReplacedByHash = &h
}

// exchangeable maps a row's state to the error Exchange reports for it.
func exchangeable(r RefreshToken, now time.Time) error {
	switch r.State(now) {
	case StateLive:
		return nil
	case StateRotated:
		return ErrRefreshReused
	default:
		return ErrRefreshNotLive
	}
}
