package transport

import (
	"testing"
	"time"
)

func TestJWTGenerateAndParseRoundTrip(t *testing.T) {
	m := NewJWTManager("super-secret", time.Hour)
	token, err := m.Generate("user-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("expected claims to carry user-1, got %q", claims.UserID)
	}
}

func TestJWTParseRejectsWrongSecret(t *testing.T) {
	m := NewJWTManager("secret-a", time.Hour)
	token, err := m.Generate("user-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	other := NewJWTManager("secret-b", time.Hour)
	if _, err := other.Parse(token); err == nil {
		t.Fatalf("expected parsing with the wrong secret to fail")
	}
}

func TestJWTParseRejectsExpiredToken(t *testing.T) {
	m := NewJWTManager("super-secret", -time.Hour)
	token, err := m.Generate("user-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatalf("expected an expired token to fail parsing")
	}
}

func TestHashAndCheckPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if err := CheckPassword(hash, "correct horse battery staple"); err != nil {
		t.Fatalf("expected the correct password to check out, got %v", err)
	}
	if err := CheckPassword(hash, "wrong password"); err == nil {
		t.Fatalf("expected the wrong password to fail the check")
	}
}
