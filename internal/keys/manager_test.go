package keys

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writePair(t *testing.T, dir, kid string) {
	t.Helper()
	key, err := GeneratePair()
	if err != nil {
		t.Fatalf("GeneratePair: %v", err)
	}
	privPEM, err := EncodePrivateKeyPEM(key)
	if err != nil {
		t.Fatalf("EncodePrivateKeyPEM: %v", err)
	}
	pubPEM, err := EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		t.Fatalf("EncodePublicKeyPEM: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, kid+".pem"), privPEM, 0o600); err != nil {
		t.Fatalf("write private pem: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, kid+".pub.pem"), pubPEM, 0o600); err != nil {
		t.Fatalf("write public pem: %v", err)
	}
}

func TestNewManagerLoadsDirectory(t *testing.T) {
	dir := t.TempDir()
	writePair(t, dir, "alpha")
	writePair(t, dir, "beta")
	// A malformed pair must be skipped, not abort loading.
	if err := os.WriteFile(filepath.Join(dir, "broken.pem"), []byte("garbage"), 0o600); err != nil {
		t.Fatalf("write broken pem: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.pub.pem"), []byte("garbage"), 0o600); err != nil {
		t.Fatalf("write broken pub pem: %v", err)
	}

	m, err := NewManager(dir, false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	public := m.PublicKeys()
	if len(public) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(public))
	}
	if _, ok := m.PublicKey("alpha"); !ok {
		t.Fatalf("alpha not loaded")
	}
	if _, ok := m.PublicKey("broken"); ok {
		t.Fatalf("broken pair must be skipped")
	}
	active := m.Active()
	if active.Kid != "alpha" && active.Kid != "beta" {
		t.Fatalf("unexpected active kid %s", active.Kid)
	}
}

func TestLoadDirUsesInjectedClock(t *testing.T) {
	dir := t.TempDir()
	writePair(t, dir, "alpha")
	writePair(t, dir, "beta")

	var calls int
	clock := func() time.Time {
		calls++
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	pairs := map[string]*Pair{}
	loadDir(dir, pairs, clock)
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	if calls != 2 {
		t.Fatalf("loading must consult the injected clock per pair, got %d calls", calls)
	}
}

func TestNewManagerRefusesEmptyWithoutDevKeys(t *testing.T) {
	if _, err := NewManager(t.TempDir(), false); err == nil {
		t.Fatalf("expected error with no keys and generation disallowed")
	}
	m, err := NewManager("", true)
	if err != nil {
		t.Fatalf("NewManager with generated key: %v", err)
	}
	if m.Active().Kid == "" {
		t.Fatalf("generated pair must carry a kid")
	}
}

func TestRotateKeepsOldKeys(t *testing.T) {
	m, err := NewManager("", true)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	first := m.Active().Kid

	kid, err := m.Rotate()
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if kid == first {
		t.Fatalf("rotation must mint a new kid")
	}
	if m.Active().Kid != kid {
		t.Fatalf("active key not switched")
	}
	if _, ok := m.PublicKey(first); !ok {
		t.Fatalf("old key must remain verifiable after rotation")
	}
	if len(m.PublicKeys()) != 2 {
		t.Fatalf("expected 2 keys after rotation")
	}
}

func TestJWKSShape(t *testing.T) {
	m, err := NewManager("", true)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := m.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	raw, err := m.JWKS()
	if err != nil {
		t.Fatalf("JWKS: %v", err)
	}
	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			Use string `json:"use"`
			Alg string `json:"alg"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode jwks: %v", err)
	}
	if len(doc.Keys) != 2 {
		t.Fatalf("expected 2 jwks entries, got %d", len(doc.Keys))
	}
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Use != "sig" || k.Alg != "RS256" {
			t.Fatalf("unexpected jwk metadata: %+v", k)
		}
		if k.N == "" || k.E != "AQAB" {
			t.Fatalf("unexpected modulus/exponent: %+v", k)
		}
		if _, ok := m.PublicKey(k.Kid); !ok {
			t.Fatalf("jwks kid %s not in keyring", k.Kid)
		}
	}
}
