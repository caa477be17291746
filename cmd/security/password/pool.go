package password

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool runs Argon2id work with a fixed concurrency ceiling so that a burst of
// logins cannot pin every CPU or exhaust memory.
type Pool struct {
	cfg Config
	sem *semaphore.Weighted

	// OnWait, if set, observes how long each call queued for a slot.
	OnWait func(time.Duration)
}

// NewPool returns a Pool sized by cfg.Workers (minimum 1).
func NewPool(cfg Config) *Pool {
	n := cfg.Workers
	if n <= 0 {
		n = 1
	}
	return &Pool{cfg: cfg, sem: semaphore.NewWeighted(int64(n))}
}

// Config returns the hashing configuration used by the pool.
func (p *Pool) Config() Config { return p.cfg }

// Hash validates and hashes password once a slot is free.
func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	// Policy failures should not wait behind expensive work.
	if err := p.cfg.Validate(password); err != nil {
		return "", err
	}
	if err := p.acquire(ctx); err != nil {
		return "", err
	}
	defer p.sem.Release(1)

	return p.cfg.Hash(password)
}

// Rehash hashes password with the current parameters, skipping the policy.
// It is for upgrading digests of passwords that were accepted earlier.
func (p *Pool) Rehash(ctx context.Context, password string) (string, error) {
	if err := p.acquire(ctx); err != nil {
		return "", err
	}
	defer p.sem.Release(1)

	cfg := p.cfg
	cfg.Policy = Policy{MinLength: 0, MaxLength: 1 << 20}
	return cfg.Hash(password)
}

// Verify compares password with encodedHash once a slot is free.
// It returns ctx.Err() only when no slot could be acquired.
func (p *Pool) Verify(ctx context.Context, encodedHash, password string) (bool, error) {
	if err := p.acquire(ctx); err != nil {
		return false, err
	}
	defer p.sem.Release(1)

	return p.cfg.Verify(encodedHash, password), nil
}

func (p *Pool) acquire(ctx context.Context) error {
	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if p.OnWait != nil {
		p.OnWait(time.Since(start))
	}
	return nil
}
