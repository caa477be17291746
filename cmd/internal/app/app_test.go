package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTKey = "0123456789abcdef0123456789abcdef-app-test"

// setAuthEnv configures the cheapest valid subsystem environment.
func setAuthEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LIVESUPPORT_AUTH_TOKEN_FORMAT", "jwt")
	t.Setenv("LIVESUPPORT_JWT_SIGNING_KEY", testJWTKey)
	t.Setenv("LIVESUPPORT_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("LIVESUPPORT_ARGON2_ITERATIONS", "1")
	t.Setenv("LIVESUPPORT_PASSWORD_WORKERS", "2")
	t.Setenv("LIVESUPPORT_DATABASE_URL", "")
	t.Setenv("LIVESUPPORT_REDIS_URL", "")
}

func testLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	log, _ := testLogger()
	a, err := New(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

func get(t *testing.T, c *http.Client, url string) (int, string) {
	t.Helper()
	resp, err := c.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestNew_InMemoryServesProbesAndMetrics(t *testing.T) {
	setAuthEnv(t)
	a := newTestApp(t, LoadConfig())

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	status, body := get(t, srv.Client(), srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok\n", body)

	status, _ = get(t, srv.Client(), srv.URL+"/readyz")
	assert.Equal(t, http.StatusOK, status)

	status, body = get(t, srv.Client(), srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `livesupport_http_requests_total{class="2xx",method="GET",route="GET /healthz"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestNew_ReadinessRequiresDB(t *testing.T) {
	setAuthEnv(t)
	cfg := LoadConfig()
	cfg.ReadinessRequireDB = true
	a := newTestApp(t, cfg)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNew_AuthFlowThroughRuntime(t *testing.T) {
	setAuthEnv(t)
	a := newTestApp(t, LoadConfig())

	srv := httptest.NewTLSServer(a.Handler())
	defer srv.Close()
	c := srv.Client()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c.Jar = jar

	creds := `{"email":"agent@example.com","password":"correct horse battery staple"}`
	resp, err := c.Post(srv.URL+"/api/auth/register", "application/json",
		strings.NewReader(`{"name":"Agent","email":"agent@example.com","password":"correct horse battery staple"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = c.Post(srv.URL+"/api/auth/login", "application/json", strings.NewReader(creds))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	assert.Equal(t, "Bearer", tok.TokenType)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	me, err := c.Do(req)
	require.NoError(t, err)
	me.Body.Close()
	assert.Equal(t, http.StatusOK, me.StatusCode)

	status, body := get(t, c, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `livesupport_auth_requests_total{op="login",outcome="ok"} 1`)
	assert.Contains(t, body, "livesupport_password_pool_wait_seconds_count")
}

func TestNew_RedisLimiter(t *testing.T) {
	setAuthEnv(t)
	mr := miniredis.RunT(t)

	cfg := LoadConfig()
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"
	a := newTestApp(t, cfg)
	require.NotNil(t, a.redis)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"nobody@example.com","password":"wrong password here"}`))
	req.Header.Set("Content-Type", "application/json")
	a.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.NotEmpty(t, mr.Keys(), "limiter counters live in redis")

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	mr.Close()
	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis not ready")
}

func TestNew_RedisUnreachableFails(t *testing.T) {
	setAuthEnv(t)
	cfg := LoadConfig()
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	log, _ := testLogger()
	_, err := New(context.Background(), cfg, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping")
}

func TestNew_RejectsBadSubsystemConfig(t *testing.T) {
	log, _ := testLogger()

	t.Run("missing signing key", func(t *testing.T) {
		t.Setenv("LIVESUPPORT_AUTH_TOKEN_FORMAT", "jwt")
		t.Setenv("LIVESUPPORT_JWT_SIGNING_KEY", "")
		_, err := New(context.Background(), LoadConfig(), log)
		require.Error(t, err)
	})

	t.Run("hmac required but absent", func(t *testing.T) {
		setAuthEnv(t)
		cfg := LoadConfig()
		cfg.RequireTokenHMAC = true
		_, err := New(context.Background(), cfg, log)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LIVESUPPORT_TOKEN_HMAC_KEY is missing")
	})

	t.Run("hmac required and present", func(t *testing.T) {
		setAuthEnv(t)
		t.Setenv("LIVESUPPORT_TOKEN_HMAC_KEY", strings.Repeat("k", 32))
		cfg := LoadConfig()
		cfg.RequireTokenHMAC = true
		a, err := New(context.Background(), cfg, log)
		require.NoError(t, err)
		a.close()
	})

	t.Run("nil logger", func(t *testing.T) {
		_, err := New(context.Background(), LoadConfig(), nil)
		require.Error(t, err)
	})
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("LIVESUPPORT_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("LIVESUPPORT_DB_MAX_CONNS", "25")
	t.Setenv("LIVESUPPORT_HTTP_READ_TIMEOUT", "bogus")
	t.Setenv("LIVESUPPORT_DB_AUTO_MIGRATE", "true")

	cfg := LoadConfig()
	assert.Equal(t, "127.0.0.1:9999", cfg.HTTPAddr)
	assert.EqualValues(t, 25, cfg.DBMaxConns)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("LIVESUPPORT_DATABASE_URL", "")
	err := Migrate([]string{"up"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LIVESUPPORT_DATABASE_URL")
}

func TestEnvHelpers_FallBackOnBadValues(t *testing.T) {
	t.Setenv("LS_TEST_INT", "-3")
	t.Setenv("LS_TEST_INT32", "0")
	t.Setenv("LS_TEST_BOOL", "yes please")
	t.Setenv("LS_TEST_DUR", "0s")
	t.Setenv("LS_TEST_STR", "   ")

	assert.Equal(t, 7, EnvInt("LS_TEST_INT", 7))
	assert.EqualValues(t, 0, EnvInt32("LS_TEST_INT32", 5))
	assert.True(t, EnvBool("LS_TEST_BOOL", true))
	assert.Equal(t, time.Second, EnvDuration("LS_TEST_DUR", time.Second))
	assert.Equal(t, "def", EnvString("LS_TEST_STR", "def"))
}
