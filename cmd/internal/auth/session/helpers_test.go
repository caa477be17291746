package session

import (
	"strings"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/stretchr/testify/require"

	"livesupport/cmd/security/password"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	cfg.JWTSigningKey = []byte(strings.Repeat("j", 32))
	require.NoError(t, cfg.Validate())
	return cfg
}

func testPasswords() *password.Pool {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 64
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	cfg.Workers = 4
	return password.NewPool(cfg)
}

// fakeClock is a settable clock for deterministic expiry tests.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
