package session

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"livesupport/cmd/security/token"
)

// TokenFormat selects the access-token encoding.
type TokenFormat string

const (
	// FormatPASETO issues PASETO v4.public tokens signed with Ed25519.
	FormatPASETO TokenFormat = "paseto"
	// FormatJWT issues JWT HS256 tokens signed with a shared secret.
	FormatJWT TokenFormat = "jwt"
)

// Config defines all runtime configuration for the session subsystem.
type Config struct {
	// Issuer and Audience are stamped into and required on every access token.
	Issuer   string
	Audience string

	// AccessTokenTTL defines the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTTL is the lifetime of the refresh row created at login.
	RefreshTTL time.Duration
	// RotationTTL is the lifetime of every row appended by a rotation.
	RotationTTL time.Duration

	// RefreshTokenBytes is the entropy of each refresh secret.
	RefreshTokenBytes int

	TokenFormat TokenFormat

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key for FormatPASETO.
	PasetoV4SecretKeyHex string
	// JWTSigningKey is the HS256 secret for FormatJWT.
	JWTSigningKey []byte

	// TokenHMACKey, when set, switches refresh hashing to HMAC-SHA256.
	TokenHMACKey []byte

	// StrictRotation makes Rotate refuse a secret that is not live instead
	// of appending a successor anyway.
	StrictRotation bool
	// RevokeOnReuse revokes all of a user's live rows when an already
	// rotated secret is presented again.
	RevokeOnReuse bool
}

// DefaultConfig returns defaults suitable for development.
// Signing keys are never defaulted.
func DefaultConfig() Config {
	return Config{
		Issuer:            "livesupport",
		Audience:          "livesupport-web",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTTL:        7 * 24 * time.Hour,
		RotationTTL:       30 * 24 * time.Hour,
		RefreshTokenBytes: token.DefaultSecretBytes,
		TokenFormat:       FormatPASETO,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required (one, by format):
//   - LIVESUPPORT_PASETO_V4_SECRET_KEY_HEX (format "paseto")
//   - LIVESUPPORT_JWT_SIGNING_KEY          (format "jwt", >= 32 bytes)
//
// Optional (durations must be valid Go duration strings):
//   - LIVESUPPORT_AUTH_TOKEN_FORMAT
//   - LIVESUPPORT_AUTH_ISSUER
//   - LIVESUPPORT_AUTH_AUDIENCE
//   - LIVESUPPORT_AUTH_ACCESS_TTL
//   - LIVESUPPORT_AUTH_REFRESH_TTL
//   - LIVESUPPORT_AUTH_ROTATION_TTL
//   - LIVESUPPORT_AUTH_REFRESH_TOKEN_BYTES
//   - LIVESUPPORT_AUTH_STRICT_ROTATION
//   - LIVESUPPORT_AUTH_REVOKE_ON_REUSE
//   - LIVESUPPORT_TOKEN_HMAC_KEY
//
// Returns an error wrapping ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("LIVESUPPORT_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}
	if v := strings.TrimSpace(os.Getenv("LIVESUPPORT_AUTH_AUDIENCE")); v != "" {
		cfg.Audience = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"LIVESUPPORT_AUTH_ACCESS_TTL", &cfg.AccessTokenTTL},
		{"LIVESUPPORT_AUTH_REFRESH_TTL", &cfg.RefreshTTL},
		{"LIVESUPPORT_AUTH_ROTATION_TTL", &cfg.RotationTTL},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			return Config{}, configErr(d.key)
		}
		*d.dst = parsed
	}

	if v := os.Getenv("LIVESUPPORT_AUTH_REFRESH_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < token.MinSecretBytes || n > 128 {
			return Config{}, configErr("LIVESUPPORT_AUTH_REFRESH_TOKEN_BYTES")
		}
		cfg.RefreshTokenBytes = n
	}

	for _, b := range []struct {
		key string
		dst *bool
	}{
		{"LIVESUPPORT_AUTH_STRICT_ROTATION", &cfg.StrictRotation},
		{"LIVESUPPORT_AUTH_REVOKE_ON_REUSE", &cfg.RevokeOnReuse},
	} {
		v := os.Getenv(b.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, configErr(b.key)
		}
		*b.dst = parsed
	}

	if v := strings.TrimSpace(os.Getenv("LIVESUPPORT_AUTH_TOKEN_FORMAT")); v != "" {
		cfg.TokenFormat = TokenFormat(strings.ToLower(v))
	}

	cfg.PasetoV4SecretKeyHex = strings.TrimSpace(os.Getenv("LIVESUPPORT_PASETO_V4_SECRET_KEY_HEX"))
	if v := os.Getenv("LIVESUPPORT_JWT_SIGNING_KEY"); v != "" {
		cfg.JWTSigningKey = []byte(v)
	}
	if v := strings.TrimSpace(os.Getenv("LIVESUPPORT_TOKEN_HMAC_KEY")); v != "" {
		cfg.TokenHMACKey = []byte(v)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants. Callers that build Config by hand
// should call it before use.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return configErr("issuer")
	}
	if c.Audience == "" {
		return configErr("audience")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTTL <= 0 || c.RotationTTL <= 0 {
		return configErr("ttl")
	}
	if c.AccessTokenTTL >= c.RefreshTTL {
		return configErr("access ttl must be shorter than refresh ttl")
	}
	if c.RefreshTokenBytes < token.MinSecretBytes {
		return configErr("refresh token bytes")
	}
	if len(c.TokenHMACKey) > 0 && len(c.TokenHMACKey) < token.MinHMACKeyBytes {
		return configErr("LIVESUPPORT_TOKEN_HMAC_KEY")
	}

	switch c.TokenFormat {
	case FormatPASETO:
		if c.PasetoV4SecretKeyHex == "" {
			return configErr("LIVESUPPORT_PASETO_V4_SECRET_KEY_HEX")
		}
	case FormatJWT:
		if len(c.JWTSigningKey) < minJWTKeyBytes {
			return configErr("LIVESUPPORT_JWT_SIGNING_KEY")
		}
	default:
		return configErr("LIVESUPPORT_AUTH_TOKEN_FORMAT")
	}
	return nil
}

func configErr(field string) error {
	return fmt.Errorf("%w: %s", ErrConfig, field)
}
