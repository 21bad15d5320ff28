// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

// Package auth provides bearer-token verification for the playback API.
//
// Credential issuance is an external concern; this package only consumes
// tokens. Verifier abstracts the check so tests can substitute a static
// implementation, and the default JWTVerifier validates HMAC-SHA256 tokens
// issued by the account service.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates the bearer token failed verification.
var ErrInvalidToken = errors.New("invalid bearer token")

// Verifier checks a bearer token and yields the user identity it carries.
type Verifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// Claims are the token claims the playback API cares about.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTVerifier validates HMAC-SHA256 tokens. The user identity is the
// registered subject claim.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier creates a verifier for the given HMAC secret. An empty
// secret is rejected; an empty issuer disables issuer checking.
func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is required but was empty")
	}
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}, nil
}

// Verify validates the token signature, expiry, and (when configured) issuer,
// and returns the subject claim as the user ID.
func (v *JWTVerifier) Verify(_ context.Context, token string) (string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		// Reject any algorithm other than HMAC to prevent alg-substitution.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return "", fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// StaticVerifier maps fixed tokens to user IDs. Test use only.
type StaticVerifier map[string]string

// Verify implements Verifier.
func (s StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	if user, ok := s[token]; ok {
		return user, nil
	}
	return "", ErrInvalidToken
}
