package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr %s", cfg.ListenAddr)
	}
	if cfg.BearerTTL != 15*time.Minute {
		t.Fatalf("unexpected bearer TTL %v", cfg.BearerTTL)
	}
	if cfg.IPRateMax != 30 || cfg.IPRateWindowSec != 60 {
		t.Fatalf("unexpected IP rate defaults %d/%d", cfg.IPRateMax, cfg.IPRateWindowSec)
	}
	if cfg.IdentRateMax != 5 || cfg.IdentRateWindowSec != 3600 {
		t.Fatalf("unexpected identifier rate defaults %d/%d", cfg.IdentRateMax, cfg.IdentRateWindowSec)
	}
	if cfg.AllowDevKeys {
		t.Fatalf("dev keys must be opt-in")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_JWT_EXPIRES_IN", "30m")
	t.Setenv("AUTH_RATE_IP_MAX", "10")
	t.Setenv("AUTH_JWT_ALLOW_DEV_KEYS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BearerTTL != 30*time.Minute {
		t.Fatalf("override not applied: %v", cfg.BearerTTL)
	}
	if cfg.IPRateMax != 10 {
		t.Fatalf("override not applied: %d", cfg.IPRateMax)
	}
	if !cfg.AllowDevKeys {
		t.Fatalf("override not applied: AllowDevKeys")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("AUTH_RATE_IP_MAX", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error for zero rate limit")
	}
}
