// Package auth establishes caller identity for the transports.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
)

const Issuer = "miniforesight"

// Claims carry the caller identity in the standard subject claim.
type Claims struct {
	Role string `json:"role,omitempty"`

	jwt.RegisteredClaims
}

type JWT struct {
	Secret   []byte
	TokenTTL time.Duration
}

// Sign issues a token for subject.
func (j JWT) Sign(subject, role string) (token string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	expiresAt = now.Add(j.TokenTTL)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(j.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return s, expiresAt, nil
}

func (j JWT) Verify(token string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return j.Secret, nil
	}, jwt.WithIssuer(Issuer))
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	c, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(c.Subject) == "" {
		return Claims{}, ErrInvalidToken
	}
	return *c, nil
}

// Verifier resolves a caller identity from a bearer token. Without a
// secret it runs in dev mode and trusts the claimed identity instead.
type Verifier struct {
	jwt *JWT
}

func NewVerifier(secret string, ttl time.Duration) *Verifier {
	if secret == "" {
		return &Verifier{}
	}
	return &Verifier{jwt: &JWT{Secret: []byte(secret), TokenTTL: ttl}}
}

// DevMode reports whether claimed identities are trusted.
func (v *Verifier) DevMode() bool {
	return v.jwt == nil
}

// Identify returns the caller for a request carrying token and, in dev
// mode only, a claimed identity.
func (v *Verifier) Identify(token, claimed string) (string, error) {
	if v.jwt == nil {
		claimed = strings.TrimSpace(claimed)
		if claimed == "" {
			return "", ErrMissingCredentials
		}
		return claimed, nil
	}
	if token == "" {
		return "", ErrMissingCredentials
	}
	c, err := v.jwt.Verify(token)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// Issue signs a token for subject. Not available in dev mode.
func (v *Verifier) Issue(subject, role string) (string, time.Time, error) {
	if v.jwt == nil {
		return "", time.Time{}, errors.New("auth: no signing secret configured")
	}
	return v.jwt.Sign(subject, role)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
