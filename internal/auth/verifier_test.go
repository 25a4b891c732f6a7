package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zerocost/portal/internal/config"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestVerifyExtractsIdentity(t *testing.T) {
	v := NewVerifier(config.Config{AuthJWTSecret: testSecret})

	token := signToken(t, testSecret, Claims{
		Email: "Dev@Example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user_123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	identity, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if identity.UserID != "user_123" {
		t.Fatalf("expected subject user_123, got %q", identity.UserID)
	}
	if identity.Email != "dev@example.com" {
		t.Fatalf("expected normalized email, got %q", identity.Email)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v := NewVerifier(config.Config{AuthJWTSecret: testSecret})

	expired := signToken(t, testSecret, Claims{
		Email: "dev@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	wrongKey := signToken(t, "other-secret", Claims{
		Email: "dev@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	noEmail := signToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   "user_123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	for name, token := range map[string]string{
		"empty":     "",
		"garbage":   "not.a.token",
		"expired":   expired,
		"wrong key": wrongKey,
		"no email":  noEmail,
	} {
		if _, err := v.Verify(token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestVerifyRejectsWhenUnconfigured(t *testing.T) {
	v := NewVerifier(config.Config{})

	token := signToken(t, testSecret, Claims{Email: "dev@example.com"})
	if _, err := v.Verify(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized without a secret, got %v", err)
	}
}
