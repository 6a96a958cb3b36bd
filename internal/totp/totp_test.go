package totp

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateSecretShape(t *testing.T) {
	secret, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	// 20 bytes -> 32 base32 chars without padding.
	if len(secret) != 32 {
		t.Fatalf("unexpected secret length %d: %s", len(secret), secret)
	}
	if strings.Contains(secret, "=") {
		t.Fatalf("secret must not carry padding: %s", secret)
	}
	other, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if secret == other {
		t.Fatalf("two secrets must not collide")
	}
}

func TestVerifyKnownVector(t *testing.T) {
	// RFC 6238 test secret "12345678901234567890" (SHA-1 suite).
	secret := "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	at := time.Unix(59, 0).UTC()
	if !VerifyAt(secret, "287082", at, 0) {
		t.Fatalf("expected RFC vector to verify at t=59")
	}
	if VerifyAt(secret, "287083", at, 0) {
		t.Fatalf("wrong code must not verify")
	}

	at = time.Unix(1111111109, 0).UTC()
	if !VerifyAt(secret, "081804", at, 0) {
		t.Fatalf("expected RFC vector to verify at t=1111111109")
	}
}

func TestVerifySkewTolerance(t *testing.T) {
	secret, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	now := time.Now()
	code, err := CodeAt(secret, now)
	if err != nil {
		t.Fatalf("CodeAt: %v", err)
	}

	if !VerifyAt(secret, code, now, 1) {
		t.Fatalf("current code must verify with skew=1")
	}
	later := now.Add(Period)
	if VerifyAt(secret, code, later, 0) {
		t.Fatalf("previous-window code must fail with skew=0")
	}
	if !VerifyAt(secret, code, later, 1) {
		t.Fatalf("previous-window code must pass with skew=1")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	if Verify("not-base32!!", "123456", 1) {
		t.Fatalf("invalid secret must not verify")
	}
	secret, _ := GenerateSecret()
	if Verify(secret, "12345", 1) {
		t.Fatalf("short code must not verify")
	}
}

func TestProvisioningURL(t *testing.T) {
	u := ProvisioningURL("polyshop", "alice@example.com", "SECRET")
	if !strings.HasPrefix(u, "otpauth://totp/polyshop:alice@example.com?") {
		t.Fatalf("unexpected url: %s", u)
	}
	if !strings.Contains(u, "secret=SECRET") || !strings.Contains(u, "issuer=polyshop") {
		t.Fatalf("url missing fields: %s", u)
	}
}
