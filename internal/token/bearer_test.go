package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/polyshop/auth-service/internal/keys"
)

func newTestIssuer(t *testing.T, opts ...Option) (*Issuer, *keys.Manager) {
	t.Helper()
	mgr, err := keys.NewManager("", true)
	if err != nil {
		t.Fatalf("keys.NewManager: %v", err)
	}
	iss, err := NewIssuer(mgr, "polyshop-auth", 15*time.Minute, opts...)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return iss, mgr
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	iss, _ := newTestIssuer(t)

	roles := []string{"Admin", "viewer", "Admin"}
	signed, issued, err := iss.Issue("user-42", roles, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if issued.ID == "" {
		t.Fatalf("expected generated jti")
	}

	claims, err := iss.Verify(signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Issuer != "polyshop-auth" {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	// Roles pass through untouched, order and duplicates included.
	if len(claims.Roles) != 3 || claims.Roles[0] != "Admin" || claims.Roles[1] != "viewer" || claims.Roles[2] != "Admin" {
		t.Fatalf("roles were altered: %v", claims.Roles)
	}
	if claims.ID != issued.ID {
		t.Fatalf("jti mismatch: %s vs %s", claims.ID, issued.ID)
	}
}

func TestIssueHonorsCallerTokenID(t *testing.T) {
	iss, _ := newTestIssuer(t)
	signed, _, err := iss.Issue("user-1", nil, "fixed-jti")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := iss.Verify(signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.ID != "fixed-jti" {
		t.Fatalf("expected caller jti, got %s", claims.ID)
	}
}

func TestVerifySurvivesRotation(t *testing.T) {
	iss, mgr := newTestIssuer(t)

	signed, _, err := iss.Issue("user-1", []string{"admin"}, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := mgr.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if _, err := iss.Verify(signed); err != nil {
		t.Fatalf("old-key token must verify after rotation: %v", err)
	}

	fresh, _, err := iss.Issue("user-2", nil, "")
	if err != nil {
		t.Fatalf("Issue after rotation: %v", err)
	}
	if _, err := iss.Verify(fresh); err != nil {
		t.Fatalf("new-key token must verify: %v", err)
	}
}

func TestVerifyRejectsUnknownKid(t *testing.T) {
	issA, _ := newTestIssuer(t)
	issB, _ := newTestIssuer(t)

	signed, _, err := issA.Issue("user-1", nil, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// issB's keyring has never seen issA's kid.
	if _, err := issB.Verify(signed); !errors.Is(err, ErrBadKey) {
		t.Fatalf("expected ErrBadKey, got %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	current := time.Now().UTC()
	iss, _ := newTestIssuer(t, WithClock(func() time.Time { return current }))

	signed, _, err := iss.Issue("user-1", nil, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	current = current.Add(16 * time.Minute)
	if _, err := iss.Verify(signed); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	iss, _ := newTestIssuer(t)
	for _, tok := range []string{"", "garbage", "a.b", "a.b.c"} {
		if _, err := iss.Verify(tok); !errors.Is(err, ErrMalformed) {
			t.Fatalf("expected ErrMalformed for %q, got %v", tok, err)
		}
	}
}

func TestContextHelpers(t *testing.T) {
	iss, _ := newTestIssuer(t)
	_, claims, err := iss.Issue("user-7", []string{"Admin", "viewer"}, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	ctx := ContextWithClaims(context.Background(), claims)
	sub, ok := SubjectFromContext(ctx)
	if !ok || sub != "user-7" {
		t.Fatalf("unexpected subject %q ok=%v", sub, ok)
	}
	jti, ok := TokenIDFromContext(ctx)
	if !ok || jti != claims.ID {
		t.Fatalf("unexpected jti %q ok=%v", jti, ok)
	}
	if !HasRole(ctx, "admin") || !HasRole(ctx, "viewer") {
		t.Fatalf("roles missing: %v", RolesFromContext(ctx))
	}
	if HasRole(ctx, "operator") {
		t.Fatalf("unexpected role")
	}
}
