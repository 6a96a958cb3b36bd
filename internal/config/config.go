// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full configuration surface, populated from AUTH_* variables.
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	PGDSN      string `envconfig:"PG_DSN"`

	Issuer    string        `envconfig:"JWT_ISSUER" default:"polyshop-auth"`
	BearerTTL time.Duration `envconfig:"JWT_EXPIRES_IN" default:"15m"`

	KeyDir         string        `envconfig:"JWT_KEY_DIR"`
	AllowDevKeys   bool          `envconfig:"JWT_ALLOW_DEV_KEYS" default:"false"`
	RotateInterval time.Duration `envconfig:"JWT_ROTATE_INTERVAL" default:"24h"`

	RefreshTTL      time.Duration `envconfig:"REFRESH_EXPIRES_IN" default:"720h"`
	EmailTokenTTL   time.Duration `envconfig:"EMAIL_TOKEN_EXPIRES_IN" default:"1h"`
	ResetTokenTTL   time.Duration `envconfig:"RESET_TOKEN_EXPIRES_IN" default:"1h"`
	PhoneOTPTTL     time.Duration `envconfig:"PHONE_OTP_EXPIRES_IN" default:"10m"`
	RestoreTokenTTL time.Duration `envconfig:"RESTORE_TOKEN_EXPIRES_IN" default:"24h"`

	IPRateMax          int `envconfig:"RATE_IP_MAX" default:"30"`
	IPRateWindowSec    int `envconfig:"RATE_IP_WINDOW_SECONDS" default:"60"`
	IdentRateMax       int `envconfig:"RATE_IDENT_MAX" default:"5"`
	IdentRateWindowSec int `envconfig:"RATE_IDENT_WINDOW_SECONDS" default:"3600"`

	Retention     time.Duration `envconfig:"TOKEN_RETENTION" default:"168h"`
	SweepInterval time.Duration `envconfig:"TOKEN_SWEEP_INTERVAL" default:"1h"`
}

// Load reads configuration from the environment under the AUTH_ prefix.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("auth", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.BearerTTL <= 0 {
		return fmt.Errorf("config: bearer TTL must be positive")
	}
	if c.RefreshTTL <= 0 {
		return fmt.Errorf("config: refresh TTL must be positive")
	}
	if c.IPRateMax <= 0 || c.IPRateWindowSec <= 0 || c.IdentRateMax <= 0 || c.IdentRateWindowSec <= 0 {
		return fmt.Errorf("config: rate limits must be positive")
	}
	if c.Retention <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("config: retention and sweep interval must be positive")
	}
	return nil
}
