// Package authapi exposes the session service over HTTP: register, login,
// refresh, logout and the bearer-protected /api/me.
//
// Access tokens travel in the JSON body; refresh secrets travel only in the
// HttpOnly refresh_token cookie.
package authapi
