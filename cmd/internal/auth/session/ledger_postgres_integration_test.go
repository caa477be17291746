package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"livesupport/cmd/identity"
	"livesupport/cmd/internal/migrations"
)

// Integration tests are opt-in and require LIVESUPPORT_DATABASE_URL.

func TestPostgresLedger_Contract(t *testing.T) {
	pool := mustOpenTestPool(t)
	users, err := identity.NewPostgresStore(pool)
	require.NoError(t, err)

	runLedgerContract(t, func(t *testing.T, opts LedgerOptions) (Ledger, func(t *testing.T) string) {
		l, err := NewPostgresLedger(pool, opts, "")
		require.NoError(t, err)

		return l, func(t *testing.T) string {
			t.Helper()
			id, err := identity.NewULID(time.Now())
			require.NoError(t, err)
			u, err := users.CreateUser(context.Background(), identity.CreateUserInput{
				Email:        fmt.Sprintf("it-%s@example.com", strings.ToLower(id)),
				Name:         "Integration",
				PasswordHash: "not-a-real-digest",
				Now:          time.Now().UTC(),
			})
			require.NoError(t, err)
			return u.ID
		}
	})
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("LIVESUPPORT_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: LIVESUPPORT_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, raw)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		if os.Getenv("CI") == "" {
			t.Skipf("integration test skipped: Postgres unreachable: %v", err)
		}
		t.Fatalf("ping: %v", err)
	}
	require.NoError(t, migrations.Up(pool, slog.New(slog.NewTextHandler(io.Discard, nil))))
	return pool
}
