// Package app wires the LiveSupport auth server runtime: config, logging,
// persistence, HTTP routes and metrics.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"livesupport/cmd/identity"
	authapi "livesupport/cmd/internal/auth/api"
	"livesupport/cmd/internal/auth/session"
	"livesupport/cmd/security/password"
)

// App is the server runtime. It owns the pool, the Redis client and the
// HTTP handler tree.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool
	redis  *redis.Client

	registry *prometheus.Registry
	handler  http.Handler
}

// New constructs a fully wired App. Subsystem settings are read from the
// environment by their own packages.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		return nil, errors.New("app: nil logger")
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	ledgerOpts, err := session.LedgerOptionsFrom(sessCfg)
	if err != nil {
		return nil, err
	}
	if err := ValidateSecurityConfig(cfg, sessCfg, ledgerOpts); err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, registry: newRegistry()}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	authMetrics := authapi.NewMetrics(a.registry)
	pool := password.NewPool(pwCfg)
	pool.OnWait = authMetrics.ObservePasswordWait

	tokens, err := session.NewAccessTokenManager(sessCfg)
	if err != nil {
		return nil, err
	}

	var (
		users   identity.Store
		ledger  session.Ledger
		auditor authapi.Auditor = authapi.LogAuditor{Log: log}
	)
	if cfg.DatabaseURL == "" {
		log.Warn("db.disabled.inmemory_store")
		users = identity.NewMemoryStore()
		ledger = session.NewMemoryLedger(ledgerOpts)
	} else {
		a.dbPool, err = NewDBPool(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("app: database: %w", err)
		}
		log.Info("db.enabled.postgres_store")

		if users, err = identity.NewPostgresStore(a.dbPool); err != nil {
			return nil, err
		}
		if ledger, err = session.NewPostgresLedger(a.dbPool, ledgerOpts, identity.DefaultSchema); err != nil {
			return nil, err
		}
		if auditor, err = authapi.NewPostgresAuditor(a.dbPool, identity.DefaultSchema, log); err != nil {
			return nil, err
		}
	}

	svc, err := session.NewService(sessCfg, session.Deps{
		Users:     users,
		Passwords: pool,
		Tokens:    tokens,
		Ledger:    ledger,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	limiter, err := a.newLimiter(ctx)
	if err != nil {
		return nil, err
	}

	auth, err := authapi.NewHandler(log, svc, authapi.LoadConfigFromEnv(),
		authapi.WithLimiter(limiter),
		authapi.WithAuditor(auditor),
		authapi.WithMetrics(authMetrics),
	)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, a.readyChecks(), a.registry, auth)
	a.handler = WithRequestLogging(mux, log, newHTTPMetrics(a.registry))

	log.Info("app.ready",
		"token_format", string(sessCfg.TokenFormat),
		"refresh_hmac", ledgerOpts.Hasher.Keyed(),
		"strict_rotation", ledgerOpts.StrictRotation,
		"password_workers", pwCfg.Workers,
		"redis_limiter", a.redis != nil,
	)
	ok = true
	return a, nil
}

// newLimiter returns the Redis limiter when LIVESUPPORT_REDIS_URL is set,
// and the in-process one otherwise.
func (a *App) newLimiter(ctx context.Context) (authapi.Limiter, error) {
	if a.cfg.RedisURL == "" {
		return authapi.NewMemoryLimiter(), nil
	}
	opts, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("app: redis url: %w", err)
	}
	a.redis = redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := a.redis.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("app: redis ping: %w", err)
	}
	a.log.Info("redis.enabled.rate_limiter")
	return authapi.NewRedisLimiter(a.redis, ""), nil
}

func (a *App) readyChecks() []readyCheck {
	var checks []readyCheck
	if pool := a.dbPool; pool != nil {
		checks = append(checks, readyCheck{"db", func(ctx context.Context) error {
			return PingDB(ctx, pool, 2*time.Second)
		}})
	}
	if rdb := a.redis; rdb != nil {
		checks = append(checks, readyCheck{"redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return checks
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbPool != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

// close releases the pool and the Redis client. The app owns both.
func (a *App) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
		a.redis = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
