package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/squadbid/internal/ports"
	"github.com/golang-jwt/jwt/v4"
)

const issuer = "squadbid"

// capabilityClaims is the payload of a capability token.
type capabilityClaims struct {
	Caps []ports.Capability `json:"caps"`
	jwt.RegisteredClaims
}

// JWTAuthorizer issues and verifies HS256 capability tokens.
type JWTAuthorizer struct {
	secret []byte
}

var _ ports.Authorizer = (*JWTAuthorizer)(nil)

// NewJWTAuthorizer returns an authorizer signing with secret.
func NewJWTAuthorizer(secret string) (*JWTAuthorizer, error) {
	if secret == "" {
		return nil, errors.New("auth.NewJWTAuthorizer: empty secret")
	}
	return &JWTAuthorizer{secret: []byte(secret)}, nil
}

// Issue mints a token for subject granting caps for ttl.
func (a *JWTAuthorizer) Issue(subject string, ttl time.Duration, caps ...ports.Capability) (string, error) {
	now := time.Now()
	claims := capabilityClaims{
		Caps: caps,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("auth.Issue: %w", err)
	}
	return signed, nil
}

// HasCapability reports whether token is valid, unexpired and grants kind.
func (a *JWTAuthorizer) HasCapability(token string, kind ports.Capability) bool {
	claims, err := a.parse(token)
	if err != nil {
		return false
	}
	for _, c := range claims.Caps {
		if c == kind {
			return true
		}
	}
	return false
}

func (a *JWTAuthorizer) parse(token string) (*capabilityClaims, error) {
	if token == "" {
		return nil, errors.New("empty token")
	}
	claims := &capabilityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.Issuer != issuer {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
