// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-0123456789abcdefghij"

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestJWTVerifierRequiresSecret(t *testing.T) {
	if _, err := NewJWTVerifier("", ""); err == nil {
		t.Error("NewJWTVerifier accepted an empty secret")
	}
}

func TestJWTVerifierValidToken(t *testing.T) {
	v, err := NewJWTVerifier(testSecret, "resona")
	if err != nil {
		t.Fatalf("NewJWTVerifier failed: %v", err)
	}

	token := signToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "resona",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	userID, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("Verify returned user %q, want user-1", userID)
	}
}

func TestJWTVerifierRejections(t *testing.T) {
	v, err := NewJWTVerifier(testSecret, "resona")
	if err != nil {
		t.Fatalf("NewJWTVerifier failed: %v", err)
	}

	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	tests := []struct {
		name  string
		token string
	}{
		{
			name: "wrong secret",
			token: signToken(t, "another-secret-entirely-padpadpad", jwt.RegisteredClaims{
				Subject: "user-1", Issuer: "resona", ExpiresAt: future,
			}),
		},
		{
			name: "expired",
			token: signToken(t, testSecret, jwt.RegisteredClaims{
				Subject: "user-1", Issuer: "resona",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			}),
		},
		{
			name: "issuer mismatch",
			token: signToken(t, testSecret, jwt.RegisteredClaims{
				Subject: "user-1", Issuer: "someone-else", ExpiresAt: future,
			}),
		},
		{
			name: "missing subject",
			token: signToken(t, testSecret, jwt.RegisteredClaims{
				Issuer: "resona", ExpiresAt: future,
			}),
		},
		{
			name:  "garbage",
			token: "not-a-token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(context.Background(), tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify returned %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTVerifierOptionalIssuer(t *testing.T) {
	v, err := NewJWTVerifier(testSecret, "")
	if err != nil {
		t.Fatalf("NewJWTVerifier failed: %v", err)
	}

	token := signToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "whoever",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	if _, err := v.Verify(context.Background(), token); err != nil {
		t.Errorf("Verify with issuer checking disabled failed: %v", err)
	}
}

func TestStaticVerifier(t *testing.T) {
	v := StaticVerifier{"token-1": "user-1"}

	userID, err := v.Verify(context.Background(), "token-1")
	if err != nil || userID != "user-1" {
		t.Errorf("Verify = (%q, %v), want (user-1, nil)", userID, err)
	}
	if _, err := v.Verify(context.Background(), "unknown"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify unknown token = %v, want ErrInvalidToken", err)
	}
}
