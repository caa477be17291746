package authapi

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"livesupport/cmd/identity"
	"livesupport/cmd/internal/auth/session"
)

// Authenticator verifies bearer access tokens. *session.Service satisfies it.
type Authenticator interface {
	Authenticate(token string) (session.AccessClaims, error)
}

type principalKey struct{}

// WithPrincipal returns ctx carrying claims.
func WithPrincipal(ctx context.Context, claims session.AccessClaims) context.Context {
	return context.WithValue(ctx, principalKey{}, claims)
}

// PrincipalFrom returns the claims RequireAuth attached to ctx.
func PrincipalFrom(ctx context.Context) (session.AccessClaims, bool) {
	c, ok := ctx.Value(principalKey{}).(session.AccessClaims)
	return c, ok
}

// RequireAuth rejects requests without a valid bearer access token and
// attaches the verified claims for next.
func RequireAuth(auth Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeUnauthorized(w, "unauthorized")
			return
		}
		claims, err := auth.Authenticate(token)
		if err != nil {
			writeUnauthorized(w, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), claims)))
	})
}

// RequireRole allows the request only when the principal's role is one of
// roles. It must run inside RequireAuth.
func RequireRole(roles ...identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := PrincipalFrom(r.Context())
			if !ok {
				writeUnauthorized(w, "unauthorized")
				return
			}
			if !slices.Contains(roles, claims.Role) {
				writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
