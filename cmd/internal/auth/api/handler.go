package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"livesupport/cmd/identity"
	"livesupport/cmd/internal/auth/session"
)

// Handler wires the auth HTTP endpoints to a session.Service.
type Handler struct {
	log *slog.Logger
	cfg Config
	svc *session.Service

	limiter Limiter
	audit   Auditor
	metrics *Metrics
	now     func() time.Time
}

// HandlerOption configures optional Handler collaborators.
type HandlerOption func(*Handler)

// WithLimiter replaces the default in-memory login limiter.
func WithLimiter(l Limiter) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.limiter = l
		}
	}
}

// WithAuditor replaces the default log-backed auditor.
func WithAuditor(a Auditor) HandlerOption {
	return func(h *Handler) {
		if a != nil {
			h.audit = a
		}
	}
}

// WithMetrics enables auth counters.
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler constructs a Handler around svc.
func NewHandler(log *slog.Logger, svc *session.Service, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("authapi: nil session service")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = DefaultConfig().CookiePath
	}

	h := &Handler{
		log:     log,
		cfg:     cfg,
		svc:     svc,
		limiter: NewMemoryLimiter(),
		audit:   LogAuditor{Log: log},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires auth routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/register", h.handleRegister)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.Handle("/api/me", RequireAuth(h.svc, http.HandlerFunc(h.handleMe)))
}

// Protect wraps a collaborator's handler with bearer authentication.
func (h *Handler) Protect(next http.Handler) http.Handler {
	return RequireAuth(h.svc, next)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	u, err := h.svc.Register(r.Context(), session.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrConflict):
			h.metrics.outcome("register", "conflict")
			writeError(w, http.StatusConflict, "conflict", "email already registered")
		case errors.Is(err, session.ErrInvalidInput):
			h.metrics.outcome("register", "invalid")
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid email, name or password")
		default:
			h.fail(w, "register", err)
		}
		return
	}

	h.metrics.outcome("register", "ok")
	h.record(r, "auth.register", u.ID, nil)
	w.Header().Set("Location", "/api/users/"+u.ID)
	writeJSON(w, http.StatusCreated, registerResponse{OK: true, ID: u.ID})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	addr := clientAddr(r, h.cfg.TrustProxy)
	email := identity.NormalizeEmail(req.Email)
	if !h.allowLogin(w, r, addr, email) {
		return
	}

	out, err := h.svc.Login(r.Context(), session.LoginInput{
		Email:       email,
		Password:    req.Password,
		OriginAddr:  addr,
		ClientAgent: strings.TrimSpace(r.UserAgent()),
	})
	if err != nil {
		if session.IsUnauthorized(err) {
			h.metrics.outcome("login", "rejected")
			h.record(r, "auth.login.failed", "", map[string]any{"email": email})
			writeUnauthorized(w, "invalid_credentials")
			return
		}
		h.fail(w, "login", err)
		return
	}

	h.metrics.outcome("login", "ok")
	h.record(r, "auth.login.success", out.UserID, nil)
	h.writeIssued(w, out)
}

// allowLogin applies the per-address and per-email windows. It writes the
// response and returns false when the attempt must stop here.
func (h *Handler) allowLogin(w http.ResponseWriter, r *http.Request, addr, email string) bool {
	now := h.now()
	checks := []struct {
		scope, key string
		max        int
		window     time.Duration
	}{
		{"ip", addr, h.cfg.LoginIPMax, h.cfg.LoginIPWindow},
		{"email", email, h.cfg.LoginEmailMax, h.cfg.LoginEmailWindow},
	}
	for _, c := range checks {
		if c.key == "" {
			continue
		}
		ok, retryAfter, err := h.limiter.Allow(r.Context(), "login:"+c.scope+":"+c.key, c.max, c.window, now)
		if err != nil {
			h.log.Error("auth.login.throttle.fail", "err", err, "scope", c.scope)
			writeUnavailable(w)
			return false
		}
		if !ok {
			h.metrics.rateLimited(c.scope)
			h.record(r, "auth.login.rate_limited", "", map[string]any{
				"scope":         c.scope,
				"retry_after_s": int64(retryAfter.Seconds()),
			})
			writeRateLimited(w, retryAfter)
			return false
		}
	}
	return true
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	secret := refreshSecretFromCookie(r)
	if secret == "" {
		h.metrics.outcome("refresh", "rejected")
		writeUnauthorized(w, "invalid_refresh")
		return
	}

	out, err := h.svc.Refresh(r.Context(), session.RefreshInput{
		Secret:      secret,
		OriginAddr:  clientAddr(r, h.cfg.TrustProxy),
		ClientAgent: strings.TrimSpace(r.UserAgent()),
	})
	if err != nil {
		if session.IsUnauthorized(err) {
			// The cookie is left alone: a parallel request may already have
			// replaced it with the winning successor.
			h.metrics.outcome("refresh", "rejected")
			if errors.Is(err, session.ErrRefreshReused) {
				h.record(r, "auth.refresh.reuse_detected", "", nil)
			}
			writeUnauthorized(w, "invalid_refresh")
			return
		}
		h.fail(w, "refresh", err)
		return
	}

	h.metrics.outcome("refresh", "ok")
	h.record(r, "auth.refresh.success", out.UserID, nil)
	h.writeIssued(w, out)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	n, err := h.svc.Logout(r.Context(), session.LogoutInput{
		AccessToken:   bearerToken(r),
		RefreshSecret: refreshSecretFromCookie(r),
	})
	if err != nil {
		h.fail(w, "logout", err)
		return
	}

	h.metrics.outcome("logout", "ok")
	if n > 0 {
		h.record(r, "auth.logout", "", map[string]any{"revoked": n})
	}
	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := PrincipalFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		User:  claims.Subject,
		Name:  claims.Name,
		Email: claims.Email,
		Role:  claims.Role.String(),
	})
}

func (h *Handler) writeIssued(w http.ResponseWriter, out session.Issued) {
	h.setRefreshCookie(w, out.RefreshSecret, out.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: out.AccessToken,
		TokenType:   out.TokenType,
		ExpiresIn:   out.ExpiresIn,
	})
}

// fail maps non-credential errors: infrastructure trouble is retryable.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if session.IsInfra(err) {
		h.metrics.outcome(op, "unavailable")
		h.log.Error("auth."+op+".infra.fail", "err", err)
		writeUnavailable(w)
		return
	}
	h.metrics.outcome(op, "error")
	h.log.Error("auth."+op+".fail", "err", err)
	writeInternal(w)
}

func clientAddr(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, p := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
			if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
				return ip.String()
			}
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}
