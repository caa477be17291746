package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"livesupport/cmd/identity"
	"livesupport/cmd/security/password"
	"livesupport/cmd/security/token"
)

// Service implements register, login, refresh and logout.
//
// It owns no mutable state of its own; every guarantee about concurrent
// refreshes comes from the Ledger.
type Service struct {
	cfg       Config
	users     identity.Store
	passwords *password.Pool
	tokens    AccessTokenManager
	ledger    Ledger
	log       *slog.Logger
	now       func() time.Time

	// dummyHash is verified against when the email is unknown so that the
	// unknown-user path costs the same as a wrong password.
	dummyHash string
}

// Deps are the collaborators a Service orchestrates.
type Deps struct {
	Users     identity.Store
	Passwords *password.Pool
	Tokens    AccessTokenManager
	Ledger    Ledger
	Logger    *slog.Logger
	// Clock defaults to time.Now in UTC.
	Clock func() time.Time
}

// NewService constructs a Service. It hashes one throwaway password up front.
func NewService(cfg Config, d Deps) (*Service, error) {
	if d.Users == nil || d.Passwords == nil || d.Tokens == nil || d.Ledger == nil {
		return nil, fmt.Errorf("%w: missing dependency", ErrConfig)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}

	pcfg := d.Passwords.Config()
	pcfg.Policy.MinLength = 0
	dummy, err := pcfg.Hash("livesupport/unknown-user")
	if err != nil {
		return nil, fmt.Errorf("session: dummy hash: %w", err)
	}

	return &Service{
		cfg:       cfg,
		users:     d.Users,
		passwords: d.Passwords,
		tokens:    d.Tokens,
		ledger:    d.Ledger,
		log:       d.Logger,
		now:       d.Clock,
		dummyHash: dummy,
	}, nil
}

// Issued is the result of a login or refresh.
type Issued struct {
	UserID      string
	AccessToken string
	TokenType   string
	// ExpiresIn is the access-token lifetime in whole seconds.
	ExpiresIn int64
	AccessExp time.Time

	// RefreshSecret is the raw secret for the session carrier. It is never logged.
	RefreshSecret    string
	RefreshExpiresAt time.Time
}

// RegisterInput is a self-registration request.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// LoginInput is a password login request plus advisory client context.
type LoginInput struct {
	Email       string
	Password    string
	OriginAddr  string
	ClientAgent string
}

// RefreshInput carries the refresh secret read from the session carrier.
type RefreshInput struct {
	Secret      string
	OriginAddr  string
	ClientAgent string
}

// LogoutInput identifies the caller by access token, refresh secret, or both.
type LogoutInput struct {
	AccessToken   string
	RefreshSecret string
}

// Register creates a user with the default role. No tokens are issued.
func (s *Service) Register(ctx context.Context, in RegisterInput) (identity.User, error) {
	const op = "session.Register"

	email := identity.NormalizeEmail(in.Email)
	name := identity.NormalizeName(in.Name)
	if !identity.ValidEmail(email) {
		return identity.User{}, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if name == "" {
		return identity.User{}, fmt.Errorf("%w: name", ErrInvalidInput)
	}

	// Cheap pre-check so duplicate registrations do not pay for a hash.
	// The store's unique constraint still decides races.
	switch _, err := s.users.GetUserByEmail(ctx, email); {
	case err == nil:
		return identity.User{}, ErrConflict
	case identity.IsNotFound(err):
	default:
		return identity.User{}, infra(op, err)
	}

	hash, err := s.passwords.Hash(ctx, in.Password)
	if err != nil {
		if password.IsPolicy(err) {
			return identity.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return identity.User{}, infra(op, err)
	}

	u, err := s.users.CreateUser(ctx, identity.CreateUserInput{
		Email:        email,
		Name:         name,
		Role:         identity.DefaultRole,
		PasswordHash: hash,
		Now:          s.now(),
	})
	switch {
	case err == nil:
	case identity.IsConflict(err):
		return identity.User{}, ErrConflict
	case identity.IsInvalidInput(err):
		return identity.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	default:
		return identity.User{}, infra(op, err)
	}

	s.log.Info("auth.register.ok", "user", u)
	return u, nil
}

// Login verifies credentials and issues an access token and refresh secret.
// Unknown email, inactive user and wrong password are indistinguishable.
func (s *Service) Login(ctx context.Context, in LoginInput) (Issued, error) {
	const op = "session.Login"
	now := s.now()

	u, err := s.users.GetUserByEmail(ctx, in.Email)
	switch {
	case err == nil:
	case identity.IsNotFound(err), identity.IsInvalidInput(err):
		if _, verr := s.passwords.Verify(ctx, s.dummyHash, in.Password); verr != nil {
			return Issued{}, infra(op, verr)
		}
		s.log.Info("auth.login.fail", "reason", "unknown_email")
		return Issued{}, ErrInvalidCredentials
	default:
		return Issued{}, infra(op, err)
	}

	ok, err := s.passwords.Verify(ctx, u.PasswordHash, in.Password)
	if err != nil {
		return Issued{}, infra(op, err)
	}
	if !ok || !u.Active {
		reason := "bad_password"
		if ok {
			reason = "inactive"
		}
		s.log.Info("auth.login.fail", "reason", reason, "user_id", u.ID)
		return Issued{}, ErrInvalidCredentials
	}

	s.maybeRehash(ctx, u, in.Password)

	out, err := s.issue(ctx, now, u, IssueMeta{OriginAddr: in.OriginAddr, ClientAgent: in.ClientAgent})
	if err != nil {
		return Issued{}, err
	}

	if err := s.users.TouchLastLogin(ctx, u.ID, now); err != nil {
		s.log.Warn("auth.login.touch.fail", "err", err, "user_id", u.ID)
	}
	s.log.Info("auth.login.ok", "user_id", u.ID)
	return out, nil
}

// Refresh exchanges a live refresh secret for a new one and a new access
// token built from the user's current record.
func (s *Service) Refresh(ctx context.Context, in RefreshInput) (Issued, error) {
	const op = "session.Refresh"
	now := s.now()

	secret := strings.TrimSpace(in.Secret)
	if secret == "" {
		return Issued{}, ErrUnauthorized
	}

	row, err := s.ledger.Lookup(ctx, secret)
	if err != nil {
		if errors.Is(err, ErrRefreshNotFound) {
			return Issued{}, ErrRefreshNotFound
		}
		return Issued{}, infra(op, err)
	}
	if err := exchangeable(row, now); err != nil {
		s.onDeadSecret(ctx, now, row, err)
		return Issued{}, err
	}

	u, err := s.users.GetUserByID(ctx, row.UserID)
	switch {
	case err == nil:
	case identity.IsNotFound(err):
		return Issued{}, ErrUnauthorized
	default:
		return Issued{}, infra(op, err)
	}
	if !u.Active {
		return Issued{}, ErrUnauthorized
	}

	next, err := token.NewRefreshSecret(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Issued{}, infra(op, err)
	}
	meta := IssueMeta{OriginAddr: in.OriginAddr, ClientAgent: in.ClientAgent}
	nextRow, err := s.ledger.Exchange(ctx, now, secret, next, s.cfg.RotationTTL, meta)
	if err != nil {
		if IsUnauthorized(err) {
			// Lost a race with another refresh of the same secret.
			s.onDeadSecret(ctx, now, row, err)
			return Issued{}, err
		}
		return Issued{}, infra(op, err)
	}

	access, exp, err := s.tokens.Issue(SubjectOf(u), now)
	if err != nil {
		return Issued{}, infra(op, err)
	}

	s.log.Info("auth.refresh.ok", "user_id", u.ID)
	return s.issued(u.ID, access, exp, now, next, nextRow.ExpiresAt), nil
}

// Logout revokes every live refresh row of the caller. The caller is the
// subject of a valid access token or, failing that, the owner of a live
// refresh secret. Unattributable calls are a no-op.
func (s *Service) Logout(ctx context.Context, in LogoutInput) (int64, error) {
	const op = "session.Logout"
	now := s.now()

	userID := ""
	if at := strings.TrimSpace(in.AccessToken); at != "" {
		if claims, err := s.tokens.Verify(at, now); err == nil {
			userID = claims.Subject
		}
	}
	if userID == "" && strings.TrimSpace(in.RefreshSecret) != "" {
		row, err := s.ledger.Lookup(ctx, in.RefreshSecret)
		switch {
		case err == nil && row.Live(now):
			userID = row.UserID
		case err == nil, errors.Is(err, ErrRefreshNotFound):
		default:
			return 0, infra(op, err)
		}
	}
	if userID == "" {
		return 0, nil
	}

	n, err := s.ledger.RevokeAll(ctx, now, userID)
	if err != nil {
		return 0, infra(op, err)
	}
	s.log.Info("auth.logout.ok", "user_id", userID, "revoked", n)
	return n, nil
}

// Authenticate verifies an access token without touching any store.
func (s *Service) Authenticate(token string) (AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	return s.tokens.Verify(token, s.now())
}

// AccessTTL is the configured access-token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.cfg.AccessTokenTTL }

func (s *Service) issue(ctx context.Context, now time.Time, u identity.User, meta IssueMeta) (Issued, error) {
	const op = "session.issue"

	access, exp, err := s.tokens.Issue(SubjectOf(u), now)
	if err != nil {
		return Issued{}, infra(op, err)
	}
	secret, err := token.NewRefreshSecret(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Issued{}, infra(op, err)
	}
	row, err := s.ledger.Store(ctx, now, u.ID, secret, s.cfg.RefreshTTL, meta)
	if err != nil {
		return Issued{}, infra(op, err)
	}
	return s.issued(u.ID, access, exp, now, secret, row.ExpiresAt), nil
}

func (s *Service) issued(userID, access string, exp, now time.Time, secret string, refreshExp time.Time) Issued {
	return Issued{
		UserID:           userID,
		AccessToken:      access,
		TokenType:        "Bearer",
		ExpiresIn:        int64(exp.Sub(tokenNow(now)) / time.Second),
		AccessExp:        exp,
		RefreshSecret:    secret,
		RefreshExpiresAt: refreshExp,
	}
}

// onDeadSecret handles a refresh with a secret that is no longer live.
func (s *Service) onDeadSecret(ctx context.Context, now time.Time, row RefreshToken, cause error) {
	if !errors.Is(cause, ErrRefreshReused) {
		return
	}
	s.log.Warn("auth.refresh.reuse", "user_id", row.UserID, "token_id", row.ID)
	if !s.cfg.RevokeOnReuse {
		return
	}
	n, err := s.ledger.RevokeAll(ctx, now, row.UserID)
	if err != nil {
		s.log.Error("auth.refresh.reuse.revoke.fail", "err", err, "user_id", row.UserID)
		return
	}
	s.log.Warn("auth.refresh.reuse.revoked", "user_id", row.UserID, "revoked", n)
}

// maybeRehash upgrades a digest made with weaker parameters. Failures are logged only.
func (s *Service) maybeRehash(ctx context.Context, u identity.User, plaintext string) {
	if !s.passwords.Config().NeedsRehash(u.PasswordHash) {
		return
	}
	h, err := s.passwords.Rehash(ctx, plaintext)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, u.ID, h)
	}
	if err != nil {
		s.log.Warn("auth.login.rehash.fail", "err", err, "user_id", u.ID)
		return
	}
	s.log.Info("auth.login.rehash.ok", "user_id", u.ID)
}
