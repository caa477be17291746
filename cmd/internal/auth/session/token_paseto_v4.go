package session

import (
	"time"

	paseto "aidanwoods.dev/go-paseto"

	"livesupport/cmd/identity"
)

type pasetoV4PublicManager struct {
	issuer   string
	audience string
	ttl      time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4PublicManager builds an AccessTokenManager based on PASETO v4.public.
//
// It uses an Ed25519 asymmetric keypair and enforces issuer, audience and
// expiration rules with no clock-skew allowance.
func NewPasetoV4PublicManager(cfg Config) (AccessTokenManager, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
	if err != nil {
		return nil, configErr("LIVESUPPORT_PASETO_V4_SECRET_KEY_HEX")
	}

	return &pasetoV4PublicManager{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.AccessTokenTTL,
		secret:   secret,
		public:   secret.Public(),
	}, nil
}

func (m *pasetoV4PublicManager) Issue(sub Subject, now time.Time) (string, time.Time, error) {
	if sub.ID == "" {
		return "", time.Time{}, ErrInvalidInput
	}
	now = tokenNow(now)
	exp := now.Add(m.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetAudience(m.audience)
	tok.SetSubject(sub.ID)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)

	tok.SetString("name", sub.Name)
	tok.SetString("email", sub.Email)
	tok.SetString("role", string(sub.Role))

	return tok.V4Sign(m.secret, nil), exp, nil
}

func (m *pasetoV4PublicManager) Verify(token string, now time.Time) (AccessClaims, error) {
	// Build a fresh parser per call to avoid accumulating rules across verifies.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(m.issuer))
	p.AddRule(paseto.ForAudience(m.audience))
	p.AddRule(paseto.ValidAt(now))

	parsed, err := p.ParseV4Public(m.public, token, nil)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}

	exp, err := parsed.GetExpiration()
	// ValidAt accepts now == exp; a token expiring at now is already dead.
	if err != nil || !exp.After(now) {
		return AccessClaims{}, ErrInvalidToken
	}

	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	iat, _ := parsed.GetIssuedAt()
	name, _ := parsed.GetString("name")
	email, _ := parsed.GetString("email")
	role, _ := parsed.GetString("role")

	return AccessClaims{
		Subject:   sub,
		Name:      name,
		Email:     email,
		Role:      identity.Role(role),
		Issuer:    m.issuer,
		Audience:  m.audience,
		IssuedAt:  iat,
		ExpiresAt: exp,
	}, nil
}
