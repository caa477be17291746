package authapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"livesupport/cmd/identity"
	"livesupport/cmd/internal/auth/session"
)

type stubAuth map[string]session.AccessClaims

func (s stubAuth) Authenticate(token string) (session.AccessClaims, error) {
	c, ok := s[token]
	if !ok {
		return session.AccessClaims{}, session.ErrInvalidToken
	}
	return c, nil
}

func TestRequireAuth(t *testing.T) {
	auth := stubAuth{"good": {Subject: "u1", Role: identity.RoleAgent}}
	var seen session.AccessClaims
	h := RequireAuth(auth, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer", http.StatusUnauthorized},
		{"Basic good", http.StatusUnauthorized},
		{"Bearer bad", http.StatusUnauthorized},
		{"Bearer good", http.StatusNoContent},
		{"bearer   good ", http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, tc.want, rr.Code, tc.header)
	}
	assert.Equal(t, "u1", seen.Subject)
}

func TestRequireRole(t *testing.T) {
	auth := stubAuth{
		"agent": {Subject: "a", Role: identity.RoleAgent},
		"admin": {Subject: "b", Role: identity.RoleAdmin},
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequireAuth(auth, RequireRole(identity.RoleAdmin)(ok))

	for token, want := range map[string]int{"agent": http.StatusForbidden, "admin": http.StatusOK} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, want, rr.Code, token)
	}

	// Without RequireAuth in front there is no principal.
	rr := httptest.NewRecorder()
	RequireRole(identity.RoleAdmin)(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestClientAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")

	assert.Equal(t, "192.0.2.10", clientAddr(req, false))
	assert.Equal(t, "198.51.100.1", clientAddr(req, true))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", clientAddr(req, true))

	req.RemoteAddr = "not-an-addr"
	assert.Equal(t, "", clientAddr(req, false))
}

func TestPrincipalFrom_Empty(t *testing.T) {
	_, ok := PrincipalFrom(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
