// Package auth implements the password gate in front of the lookup API:
// a shared password is exchanged for a short-lived session token, and the
// token is required on every profile request.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Gate issues and verifies HS256 session tokens.
type Gate struct {
	password   string
	secret     []byte
	defaultTTL time.Duration
}

// NewGate creates a gate. An empty password disables gating entirely.
func NewGate(password, secret string, defaultTTL time.Duration) *Gate {
	return &Gate{
		password:   password,
		secret:     []byte(secret),
		defaultTTL: defaultTTL,
	}
}

// Enabled reports whether the gate requires a session token.
func (g *Gate) Enabled() bool {
	return g.password != ""
}

// CheckPassword verifies the gate password in constant time.
func (g *Gate) CheckPassword(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(g.password)) == 1
}

// Session is an issued session token with its absolute expiry.
type Session struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Issue creates a session token. A zero ttl falls back to the default.
func (g *Gate) Issue(ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		ttl = g.defaultTTL
	}
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   "member-lookup",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return nil, fmt.Errorf("signing session token: %w", err)
	}

	return &Session{Token: signed, ExpiresAt: expiresAt.Unix()}, nil
}

// Verify parses and validates a session token.
func (g *Gate) Verify(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return g.secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid session token")
	}
	return nil
}
