package auth

import (
	"errors"
	"testing"
	"time"
)

var secret = []byte("test-secret")

func TestIssueAndParse(t *testing.T) {
	tok, err := IssueKioskToken(secret, "kiosk-a", time.Hour)
	if err != nil {
		t.Fatalf("IssueKioskToken: %v", err)
	}
	claims, err := Parse(secret, tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.KioskID != "kiosk-a" || claims.Subject != "kiosk-a" {
		t.Errorf("unexpected claims %+v", claims)
	}
	if claims.ExpiresAt == nil {
		t.Error("expected an expiry")
	}
}

func TestNoExpiryWhenTTLZero(t *testing.T) {
	tok, err := IssueKioskToken(secret, "kiosk-a", 0)
	if err != nil {
		t.Fatalf("IssueKioskToken: %v", err)
	}
	claims, err := Parse(secret, tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.ExpiresAt != nil {
		t.Errorf("expected no expiry, got %v", claims.ExpiresAt)
	}
}

func TestParseRejects(t *testing.T) {
	good, _ := IssueKioskToken(secret, "kiosk-a", time.Hour)
	expired, _ := IssueKioskToken(secret, "kiosk-a", -time.Minute)

	cases := map[string]struct {
		secret []byte
		token  string
	}{
		"wrong secret": {[]byte("other"), good},
		"expired":      {secret, expired},
		"garbage":      {secret, "not-a-token"},
	}
	for name, c := range cases {
		if _, err := Parse(c.secret, c.token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestIssueRequiresKiosk(t *testing.T) {
	if _, err := IssueKioskToken(secret, "", time.Hour); err == nil {
		t.Fatal("expected error for empty kiosk id")
	}
}
