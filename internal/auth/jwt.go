// Package auth handles sessions, password hashing and GitHub sign-in.
//
// A session is a stateless HS256 JWT stored in the HttpOnly "token" cookie.
// Its claims carry the user id (the standard "sub" claim) plus the small
// projection of the user document that pages render on every request:
// username, email and icon reference.
//
// Nothing is stored server-side, so logging out just deletes the cookie; a
// copied token stays valid until it expires. One hour keeps that window
// short.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "skillbarter"

// DefaultTokenDuration is the session lifetime when none is configured.
const DefaultTokenDuration = time.Hour

// TokenService issues and validates session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

type claims struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	UserIcon string `json:"userIcon,omitempty"`
	jwt.RegisteredClaims
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters. A non-positive ttl falls back to DefaultTokenDuration.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("auth: JWT secret must be at least 16 characters, got %d", len(secret))
	}
	if ttl <= 0 {
		ttl = DefaultTokenDuration
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is the lifetime of tokens from Generate. The cookie uses it as MaxAge.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Generate signs a token for the session with the configured lifetime.
func (s *TokenService) Generate(sess Session) (string, error) {
	return s.GenerateWithDuration(sess, s.ttl)
}

// GenerateWithDuration signs a token that expires after d.
// Tests use a negative d to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(sess Session, d time.Duration) (string, error) {
	if sess.UserID == "" {
		return "", errors.New("auth: session has no user id")
	}

	now := time.Now()
	c := claims{
		Username: sess.Username,
		Email:    sess.Email,
		UserIcon: sess.UserIcon,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenStr and returns the session it carries.
//
// Only HS256 is accepted. Pinning the method stops a token that claims
// "alg":"none" (or an asymmetric algorithm keyed with our secret) from
// passing.
func (s *TokenService) Validate(tokenStr string) (Session, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(tokenStr, c,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Session{}, fmt.Errorf("auth: invalid token: %w", err)
	}
	if c.Subject == "" {
		return Session{}, errors.New("auth: token has no subject")
	}

	return Session{
		UserID:   c.Subject,
		Username: c.Username,
		Email:    c.Email,
		UserIcon: c.UserIcon,
	}, nil
}
