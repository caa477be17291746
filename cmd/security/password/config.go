package password

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
	// Workers bounds concurrent hash/verify calls made through a Pool.
	Workers int
}

// DefaultConfig is the production baseline: 64 MiB, t=3, one lane and one
// pool worker per CPU up to four. Passwords are 8 to 128 runes.
func DefaultConfig() Config {
	lanes := min(max(runtime.NumCPU(), 1), 4)
	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(lanes), // #nosec G115 -- in [1..4].
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy:  Policy{MinLength: 8, MaxLength: 128},
		Workers: lanes,
	}
}

// envUint is one numeric override read by FromEnv.
type envUint struct {
	key      string
	min, max uint64
	set      func(c *Config, v uint64)
}

var envUints = []envUint{
	{"LIVESUPPORT_PASSWORD_MIN_LEN", 1, 1024, func(c *Config, v uint64) { c.Policy.MinLength = int(v) }},
	{"LIVESUPPORT_PASSWORD_MAX_LEN", 1, 4096, func(c *Config, v uint64) { c.Policy.MaxLength = int(v) }},
	{"LIVESUPPORT_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, func(c *Config, v uint64) { c.Params.MemoryKiB = uint32(v) }},
	{"LIVESUPPORT_ARGON2_ITERATIONS", 1, 20, func(c *Config, v uint64) { c.Params.Iterations = uint32(v) }},
	{"LIVESUPPORT_ARGON2_PARALLELISM", 1, 64, func(c *Config, v uint64) { c.Params.Parallelism = uint8(v) }}, // #nosec G115 -- bounded above.
	{"LIVESUPPORT_ARGON2_SALT_LEN", 8, 64, func(c *Config, v uint64) { c.Params.SaltLength = uint32(v) }},
	{"LIVESUPPORT_ARGON2_KEY_LEN", 16, 64, func(c *Config, v uint64) { c.Params.KeyLength = uint32(v) }},
	{"LIVESUPPORT_PASSWORD_WORKERS", 1, 256, func(c *Config, v uint64) { c.Workers = int(v) }},
}

// FromEnv starts from DefaultConfig and applies LIVESUPPORT_PASSWORD_* and
// LIVESUPPORT_ARGON2_* overrides. A set but malformed or out-of-range value
// is an error, never silently ignored.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	for _, e := range envUints {
		raw, ok := os.LookupEnv(e.key)
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("%s: not an unsigned integer", e.key)
		}
		if v < e.min || v > e.max {
			return Config{}, fmt.Errorf("%s: out of range [%d..%d]", e.key, e.min, e.max)
		}
		e.set(&cfg, v)
	}

	if raw, ok := os.LookupEnv("LIVESUPPORT_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("LIVESUPPORT_PASSWORD_REJECT_VERY_WEAK: %w", err)
		}
		cfg.Policy.RejectVeryWeak = b
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("password policy: min length %d exceeds max length %d",
			cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}
	return cfg, nil
}
