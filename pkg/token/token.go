// Package token issues the signed proof a client presents after entering the
// correct password for a link.
package token

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer = "linkvault"
	proofAudience = "linkvault:access"
	minSecretLen  = 32
)

// ErrInvalidToken covers every way a proof can fail verification
var ErrInvalidToken = errors.New("invalid access token")

// Issuer signs and verifies HS256 proof tokens bound to a single content ID
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures an Issuer
type Option func(*Issuer)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an issuer; the secret must be at least 32 bytes
func NewIssuer(secret []byte, ttl time.Duration, opts ...Option) (*Issuer, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("token secret must be at least %d bytes, got %d", minSecretLen, len(secret))
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	i := &Issuer{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// RandomSecret returns a fresh 32-byte signing key
func RandomSecret() ([]byte, error) {
	b := make([]byte, minSecretLen)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Issue signs a proof for contentID. The token never outlives notAfter when it is set.
func (i *Issuer) Issue(contentID string, notAfter time.Time) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	if !notAfter.IsZero() && notAfter.Before(exp) {
		exp = notAfter
	}

	claims := jwt.RegisteredClaims{
		Issuer:    defaultIssuer,
		Subject:   contentID,
		Audience:  jwt.ClaimStrings{proofAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, lifetime, audience and that the token was issued for contentID
func (i *Issuer) Verify(tokenString, contentID string) error {
	if tokenString == "" {
		return fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(defaultIssuer),
		jwt.WithAudience(proofAudience),
		jwt.WithSubject(contentID),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}
