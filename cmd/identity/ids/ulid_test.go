package ids

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewULID_MonotonicWithinMillisecond(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	prev := ""
	for i := 0; i < 100; i++ {
		id, err := NewULID(now)
		require.NoError(t, err)
		require.Len(t, id, 26)
		require.True(t, Valid(id))
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestValid(t *testing.T) {
	require.False(t, Valid(""))
	require.False(t, Valid("not-a-ulid"))
}
