package authapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LIVESUPPORT_AUTH_COOKIE_SECURE", "false")
	t.Setenv("LIVESUPPORT_AUTH_COOKIE_PATH", "relative")
	t.Setenv("LIVESUPPORT_AUTH_LOGIN_EMAIL_MAX", "9")
	t.Setenv("LIVESUPPORT_AUTH_LOGIN_IP_WINDOW", "bogus")

	cfg := LoadConfigFromEnv()
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, "/api/auth", cfg.CookiePath)
	assert.Equal(t, 9, cfg.LoginEmailMax)
	assert.Equal(t, 5*time.Minute, cfg.LoginIPWindow)
}

func TestRefreshCookieAttributes(t *testing.T) {
	h := &Handler{cfg: DefaultConfig()}
	exp := time.Now().Add(time.Hour)

	rr := httptest.NewRecorder()
	h.setRefreshCookie(rr, "s3cret", exp)
	c := refreshCookieOf(rr.Result())
	if assert.NotNil(t, c) {
		assert.Equal(t, "s3cret", c.Value)
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
		assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
		assert.Equal(t, "/api/auth", c.Path)
	}

	// Dev mode may drop Secure but never HttpOnly or SameSite.
	h.cfg.CookieSecure = false
	rr = httptest.NewRecorder()
	h.clearRefreshCookie(rr)
	c = refreshCookieOf(rr.Result())
	if assert.NotNil(t, c) {
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
		assert.True(t, c.HttpOnly)
		assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: " tok "})
	assert.Equal(t, "tok", refreshSecretFromCookie(req))
}
