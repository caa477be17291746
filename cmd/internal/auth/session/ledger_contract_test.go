package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livesupport/cmd/security/token"
)

// ledgerFactory returns a fresh ledger plus a user ID that the ledger accepts
// as a foreign key. Both implementations run the same contract.
type ledgerFactory func(t *testing.T, opts LedgerOptions) (Ledger, func(t *testing.T) string)

func secret(t *testing.T) string {
	t.Helper()
	s, err := token.NewRefreshSecret(token.MinSecretBytes)
	require.NoError(t, err)
	return s
}

func runLedgerContract(t *testing.T, factory ledgerFactory) {
	ctx := context.Background()
	t0 := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	lenient := LedgerOptions{RotationTTL: 30 * 24 * time.Hour}

	t.Run("store then rotate", func(t *testing.T) {
		l, newUser := factory(t, lenient)
		u := newUser(t)
		a, b := secret(t), secret(t)

		_, err := l.Store(ctx, t0, u, a, time.Hour, IssueMeta{OriginAddr: "10.0.0.1", ClientAgent: "ua"})
		require.NoError(t, err)
		ok, err := l.IsValid(ctx, t0, u, a)
		require.NoError(t, err)
		assert.True(t, ok)

		res, err := l.Rotate(ctx, t0.Add(time.Minute), u, a, b)
		require.NoError(t, err)
		assert.True(t, res.Replaced)
		assert.Equal(t, t0.Add(time.Minute).Add(30*24*time.Hour), res.New.ExpiresAt.UTC())

		ok, err = l.IsValid(ctx, t0.Add(time.Minute), u, a)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = l.IsValid(ctx, t0.Add(time.Minute), u, b)
		require.NoError(t, err)
		assert.True(t, ok)

		old, err := l.Lookup(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, StateRotated, old.State(t0.Add(time.Minute)))
		require.NotNil(t, old.ReplacedByHash)
		assert.Equal(t, res.New.TokenHash, *old.ReplacedByHash)
	})

	t.Run("surrounding whitespace is a different secret", func(t *testing.T) {
		l, newUser := factory(t, lenient)
		u := newUser(t)
		a := secret(t)

		_, err := l.Store(ctx, t0, u, " "+a, time.Hour, IssueMeta{})
		assert.ErrorIs(t, err, ErrInvalidInput)
		_, err = l.Store(ctx, t0, u, a, time.Hour, IssueMeta{})
		require.NoError(t, err)

		for _, padded := range []string{" " + a, a + "\n", "\t" + a} {
			ok, err := l.IsValid(ctx, t0, u, padded)
			require.NoError(t, err)
			assert.False(t, ok, "%q", padded)
			_, err = l.Lookup(ctx, padded)
			assert.ErrorIs(t, err, ErrRefreshNotFound)
		}
		ok, err := l.IsValid(ctx, t0, u, a)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("isValid is scoped to the owner", func(t *testing.T) {
		l, newUser := factory(t, lenient)
		u, other := newUser(t), newUser(t)
		a := secret(t)

		_, err := l.Store(ctx, t0, u, a, time.Hour, IssueMeta{})
		require.NoError(t, err)
		ok, err := l.IsValid(ctx, t0, other, a)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expiry is lazy and exclusive", func(t *testing.T) {
		l, newUser := factory(t, lenient)
		u := newUser(t)
		a := secret(t)

		_, err := l.Store(ctx, t0, u, a, time.Hour, IssueMeta{})
		require.NoError(t, err)

		ok, _ := l.IsValid(ctx, t0.Add(time.Hour-time.Second), u, a)
		assert.True(t, ok)
		ok, _ = l.IsValid(ctx, t0.Add(time.Hour), u, a)
		assert.False(t, ok)
	})

	t.Run("lenient rotate of a dead secret still appends", func(t *testing.T) {
		l, newUser := factory(t, lenient)
		u := newUser(t)
		dead, b := secret(t), secret(t)

		res, err := l.Rotate(ctx, t0, u, dead, b)
		require.NoError(t, err)
		assert.False(t, res.Replaced)

		ok, _ := l.IsValid(ctx, t0, u, b)
		assert.True(t, ok)
	})

	t.Run("strict rotate refuses a dead secret", func(t *testing.T) {
		strict := lenient
		strict.StrictRotation = true
		l, newUser := factory(t, strict)
		u := newUser(t)
		a, b, c := secret(t), secret(t), secret(t)

		_, err := l.Rotate(ctx, t0, u, a, b)
		require.ErrorIs(t, err, ErrRefreshNotLive)
		ok, _ := l.IsValid(ctx, t0, u, b)
		assert.False(t, ok)

		_, err = l.Store(ctx, t0, u, a, time.Hour, IssueMeta{})
		require.NoError(t, err)
		res, err := l.Rotate(ctx, t0, u, a, c)
		require.NoError(t, err)
		assert.True(t, res.Replaced)
	})

	t.Run("revokeAll is idempotent", func(t *testing.T) {
		l, newUser := factory(t, lenient)
		u, other := newUser(t), newUser(t)
		a, b, c := secret(t), secret(t), secret(t)

		for _, s := range []string{a, b} {
			_, err := l.Store(ctx, t0, u, s, time.Hour, IssueMeta{})
			require.NoError(t, err)
		}
		_, err := l.Store(ctx, t0, other, c, time.Hour, IssueMeta{})
		require.NoError(t, err)

		n, err := l.RevokeAll(ctx, t0, u)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		n, err = l.RevokeAll(ctx, t0.Add(time.Second), u)
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)

		for _, s := range []string{a, b} {
			ok, _ := l.IsValid(ctx, t0, u, s)
			assert.False(t, ok)
			r, err := l.Lookup(ctx, s)
			require.NoError(t, err)
			assert.Equal(t, StateRevoked, r.State(t0))
		}
		ok, _ := l.IsValid(ctx, t0, other, c)
		assert.True(t, ok)
	})

	t.Run("exchange reports reuse and dead secrets", func(t *testing.T) {
		l, newUser := factory(t, lenient)
		u := newUser(t)
		a, b, c, d := secret(t), secret(t), secret(t), secret(t)

		_, err := l.Store(ctx, t0, u, a, time.Hour, IssueMeta{ClientAgent: "first"})
		require.NoError(t, err)

		next, err := l.Exchange(ctx, t0, a, b, time.Hour, IssueMeta{})
		require.NoError(t, err)
		assert.Equal(t, u, next.UserID)
		require.NotNil(t, next.ClientAgent)
		assert.Equal(t, "first", *next.ClientAgent)

		_, err = l.Exchange(ctx, t0, a, c, time.Hour, IssueMeta{})
		assert.ErrorIs(t, err, ErrRefreshReused)

		_, err = l.Exchange(ctx, t0, "never-issued-secret", c, time.Hour, IssueMeta{})
		assert.ErrorIs(t, err, ErrRefreshNotFound)

		_, err = l.RevokeAll(ctx, t0, u)
		require.NoError(t, err)
		_, err = l.Exchange(ctx, t0, b, d, time.Hour, IssueMeta{})
		assert.ErrorIs(t, err, ErrRefreshNotLive)
	})

	t.Run("lineage follows replaced-by", func(t *testing.T) {
		l, newUser := factory(t, lenient)
		u := newUser(t)
		s := []string{secret(t), secret(t), secret(t), secret(t)}

		_, err := l.Store(ctx, t0, u, s[0], time.Hour, IssueMeta{})
		require.NoError(t, err)
		for i := 1; i < len(s); i++ {
			_, err := l.Rotate(ctx, t0.Add(time.Duration(i)*time.Minute), u, s[i-1], s[i])
			require.NoError(t, err)
		}

		chain, err := l.Lineage(ctx, u, s[0])
		require.NoError(t, err)
		require.Len(t, chain, 4)
		for i := 0; i < 3; i++ {
			require.NotNil(t, chain[i].ReplacedByHash)
			assert.Equal(t, chain[i+1].TokenHash, *chain[i].ReplacedByHash)
		}
		assert.True(t, chain[3].Live(t0.Add(time.Hour)))

		mid, err := l.Lineage(ctx, u, s[2])
		require.NoError(t, err)
		assert.Len(t, mid, 2)

		_, err = l.Lineage(ctx, "someone-else", s[0])
		assert.ErrorIs(t, err, ErrRefreshNotFound)
	})

	t.Run("concurrent exchange yields one successor", func(t *testing.T) {
		l, newUser := factory(t, lenient)
		u := newUser(t)
		a := secret(t)
		_, err := l.Store(ctx, t0, u, a, time.Hour, IssueMeta{})
		require.NoError(t, err)

		const n = 32
		var (
			wg      sync.WaitGroup
			wins    atomic.Int32
			reused  atomic.Int32
			winners = make(chan string, n)
		)
		for i := 0; i < n; i++ {
			next := secret(t)
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := l.Exchange(ctx, t0, a, next, time.Hour, IssueMeta{})
				switch {
				case err == nil:
					wins.Add(1)
					winners <- next
				case assert.ErrorIs(t, err, ErrRefreshReused):
					reused.Add(1)
				}
			}()
		}
		wg.Wait()
		close(winners)

		assert.EqualValues(t, 1, wins.Load())
		assert.EqualValues(t, n-1, reused.Load())

		chain, err := l.Lineage(ctx, u, a)
		require.NoError(t, err)
		require.Len(t, chain, 2)
		ok, _ := l.IsValid(ctx, t0, u, <-winners)
		assert.True(t, ok)
	})

	t.Run("concurrent rotate replaces once", func(t *testing.T) {
		l, newUser := factory(t, lenient)
		u := newUser(t)
		a := secret(t)
		_, err := l.Store(ctx, t0, u, a, time.Hour, IssueMeta{})
		require.NoError(t, err)

		const n = 16
		var (
			wg       sync.WaitGroup
			replaced atomic.Int32
		)
		for i := 0; i < n; i++ {
			next := secret(t)
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := l.Rotate(ctx, t0, u, a, next)
				if assert.NoError(t, err) && res.Replaced {
					replaced.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 1, replaced.Load())
		chain, err := l.Lineage(ctx, u, a)
		require.NoError(t, err)
		assert.Len(t, chain, 2)
	})
}
