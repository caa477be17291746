package authapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RefreshCookieName is the name browsers send the refresh secret under.
const RefreshCookieName = "refresh_token"

// Config controls the auth HTTP surface.
type Config struct {
	// TrustProxy makes X-Forwarded-For / X-Real-IP authoritative for the client address.
	TrustProxy   bool
	MaxBodyBytes int64

	CookiePath   string
	CookieDomain string
	CookieSecure bool

	// Login attempts are limited per client address and per normalized email.
	LoginIPMax       int
	LoginIPWindow    time.Duration
	LoginEmailMax    int
	LoginEmailWindow time.Duration
}

// DefaultConfig returns the production cookie and throttle settings.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:     64 << 10,
		CookiePath:       "/api/auth",
		CookieSecure:     true,
		LoginIPMax:       20,
		LoginIPWindow:    5 * time.Minute,
		LoginEmailMax:    5,
		LoginEmailWindow: 15 * time.Minute,
	}
}

// LoadConfigFromEnv overlays LIVESUPPORT_AUTH_* variables on DefaultConfig.
//
// The refresh cookie always stays HttpOnly and SameSite=Strict; only Secure can
// be switched off, for plain-HTTP local development.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	cfg := Config{
		TrustProxy:       envBool("LIVESUPPORT_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:     envInt64("LIVESUPPORT_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		CookiePath:       envString("LIVESUPPORT_AUTH_COOKIE_PATH", def.CookiePath),
		CookieDomain:     envString("LIVESUPPORT_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:     envBool("LIVESUPPORT_AUTH_COOKIE_SECURE", true),
		LoginIPMax:       envInt("LIVESUPPORT_AUTH_LOGIN_IP_MAX", def.LoginIPMax),
		LoginIPWindow:    envDuration("LIVESUPPORT_AUTH_LOGIN_IP_WINDOW", def.LoginIPWindow),
		LoginEmailMax:    envInt("LIVESUPPORT_AUTH_LOGIN_EMAIL_MAX", def.LoginEmailMax),
		LoginEmailWindow: envDuration("LIVESUPPORT_AUTH_LOGIN_EMAIL_WINDOW", def.LoginEmailWindow),
	}
	if !strings.HasPrefix(cfg.CookiePath, "/") {
		cfg.CookiePath = def.CookiePath
	}
	return cfg
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
