package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"livesupport/cmd/identity"
)

const minJWTKeyBytes = 32

type jwtClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type jwtHS256Manager struct {
	issuer   string
	audience string
	ttl      time.Duration
	key      []byte
}

// NewJWTHS256Manager builds an AccessTokenManager issuing HS256 JWTs, for
// clients that already speak JWT bearer tokens.
func NewJWTHS256Manager(cfg Config) (AccessTokenManager, error) {
	if len(cfg.JWTSigningKey) < minJWTKeyBytes {
		return nil, configErr("LIVESUPPORT_JWT_SIGNING_KEY")
	}
	key := make([]byte, len(cfg.JWTSigningKey))
	copy(key, cfg.JWTSigningKey)

	return &jwtHS256Manager{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.AccessTokenTTL,
		key:      key,
	}, nil
}

func (m *jwtHS256Manager) Issue(sub Subject, now time.Time) (string, time.Time, error) {
	if sub.ID == "" {
		return "", time.Time{}, ErrInvalidInput
	}
	now = tokenNow(now)
	exp := now.Add(m.ttl)

	claims := jwtClaims{
		Name:  sub.Name,
		Email: sub.Email,
		Role:  string(sub.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   sub.ID,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *jwtHS256Manager) Verify(token string, now time.Time) (AccessClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(0),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	var c jwtClaims
	_, err := parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return m.key, nil
	})
	if err != nil || c.Subject == "" || c.ExpiresAt == nil {
		return AccessClaims{}, ErrInvalidToken
	}

	var iat time.Time
	if c.IssuedAt != nil {
		iat = c.IssuedAt.Time
	}

	return AccessClaims{
		Subject:   c.Subject,
		Name:      c.Name,
		Email:     c.Email,
		Role:      identity.Role(c.Role),
		Issuer:    c.Issuer,
		Audience:  m.audience,
		IssuedAt:  iat,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
