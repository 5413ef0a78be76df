package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("test-secret")
	claims := Claims{Sub: "user_1", Name: "Alice", JTI: "jti_1", Exp: time.Now().Add(time.Hour).Unix()}

	token, err := IssueToken(secret, claims)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	parsed, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if parsed != claims {
		t.Fatalf("claims round-trip mismatch: %+v vs %+v", parsed, claims)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	secret := []byte("test-secret")
	claims := Claims{Sub: "user_1", Name: "Alice", JTI: "jti_1", Exp: time.Now().Add(time.Hour).Unix()}
	token, err := IssueToken(secret, claims)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if _, err := ParseToken([]byte("other-secret"), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: err = %v, want ErrInvalidToken", err)
	}
	if _, err := ParseToken(secret, token+"x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token: err = %v, want ErrInvalidToken", err)
	}
	if _, err := ParseToken(secret, "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: err = %v, want ErrInvalidToken", err)
	}
}

func TestParseTokenExpired(t *testing.T) {
	secret := []byte("test-secret")
	claims := Claims{Sub: "user_1", Name: "Alice", JTI: "jti_1", Exp: time.Now().Add(-time.Minute).Unix()}
	token, err := IssueToken(secret, claims)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := ParseToken(secret, token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("err = %v, want ErrExpiredToken", err)
	}
}
