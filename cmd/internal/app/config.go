package app

import "time"

// Config contains the runtime configuration loaded from environment variables.
// Subsystem settings (session, password, auth HTTP) load their own LIVESUPPORT_* keys.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	// DatabaseURL empty means in-memory stores (development only).
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	// AutoMigrate applies embedded migrations before serving.
	AutoMigrate bool

	// RedisURL, when set, moves login rate limiting into Redis.
	RedisURL string

	// If true, /readyz returns 503 unless the database is configured and reachable.
	ReadinessRequireDB bool

	// If true, LIVESUPPORT_TOKEN_HMAC_KEY must be set so refresh hashes are keyed.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("LIVESUPPORT_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("LIVESUPPORT_LOG_LEVEL", "info"),
		LogFormat: EnvString("LIVESUPPORT_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("LIVESUPPORT_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("LIVESUPPORT_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("LIVESUPPORT_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("LIVESUPPORT_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("LIVESUPPORT_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    EnvInt("LIVESUPPORT_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("LIVESUPPORT_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("LIVESUPPORT_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("LIVESUPPORT_DB_MIN_CONNS", 0),
		AutoMigrate: EnvBool("LIVESUPPORT_DB_AUTO_MIGRATE", false),

		RedisURL: EnvString("LIVESUPPORT_REDIS_URL", ""),

		ReadinessRequireDB: EnvBool("LIVESUPPORT_READINESS_REQUIRE_DB", false),
		RequireTokenHMAC:   EnvBool("LIVESUPPORT_REQUIRE_TOKEN_HMAC", false),
	}
}
