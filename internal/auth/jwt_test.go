package auth

import (
	"strings"
	"testing"
	"time"
)

func TestCreateAndVerifySessionToken(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	token, err := CreateSessionToken("u1", "dev-1", cfg)
	if err != nil {
		t.Fatalf("CreateSessionToken: %v", err)
	}

	claims, err := VerifySessionToken(token, cfg)
	if err != nil {
		t.Fatalf("VerifySessionToken: %v", err)
	}
	if claims.UserID != "u1" || claims.DeviceID != "dev-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifySessionToken_WrongSecret(t *testing.T) {
	token, err := CreateSessionToken("u1", "dev-1", TokenConfig{Secret: "a", Expiry: time.Hour, Issuer: "test"})
	if err != nil {
		t.Fatalf("CreateSessionToken: %v", err)
	}
	if _, err := VerifySessionToken(token, TokenConfig{Secret: "b", Expiry: time.Hour, Issuer: "test"}); err == nil {
		t.Fatalf("expected verification failure")
	}
}

func TestCreateSessionToken_Validation(t *testing.T) {
	if _, err := CreateSessionToken("", "d", TokenConfig{Secret: "s", Expiry: time.Hour}); err == nil {
		t.Fatalf("expected error for missing user")
	}
	if _, err := CreateSessionToken("u", "d", TokenConfig{Expiry: time.Hour}); err == nil {
		t.Fatalf("expected error for missing secret")
	}
}

func TestNewPairingCode(t *testing.T) {
	code, err := NewPairingCode()
	if err != nil {
		t.Fatalf("NewPairingCode: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("expected numeric code, got %q", code)
		}
	}
}

func TestNewPairingToken(t *testing.T) {
	a, err := NewPairingToken()
	if err != nil {
		t.Fatalf("NewPairingToken: %v", err)
	}
	b, err := NewPairingToken()
	if err != nil {
		t.Fatalf("NewPairingToken: %v", err)
	}
	if !strings.HasPrefix(a, "tok_") || a == b {
		t.Fatalf("expected distinct prefixed tokens, got %q %q", a, b)
	}
}
