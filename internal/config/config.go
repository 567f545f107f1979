// Package config loads runtime settings for the auth core from the
// environment and validates them at startup. Validation is strict: a missing
// or short signing/CSRF secret is a startup failure, never a silent default.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envAuthSecret      = "TREK_AUTH_SECRET"
	envCSRFSecret      = "TREK_CSRF_SECRET"
	envGoogleClientID  = "TREK_GOOGLE_CLIENT_ID"
	envPGDSN           = "TREK_PG_DSN"
	envAddr            = "TREK_ADDR"
	envSessionTTL      = "TREK_SESSION_TTL"
	envCSRFTTL         = "TREK_CSRF_TTL"
	envRateWindow      = "TREK_RATE_WINDOW"
	envRateMax         = "TREK_RATE_MAX"
	envRateAuthMax     = "TREK_RATE_AUTH_MAX"
	envRevokeOnRefresh = "TREK_REVOKE_ON_REFRESH"
	envAllowedOrigins  = "TREK_ALLOWED_ORIGINS"
	envEventRetention  = "TREK_EVENT_RETENTION"
)

const (
	minSecretLen = 32

	// Session tokens never outlive four hours regardless of configuration.
	maxSessionTTL = 4 * time.Hour
)

// Config holds runtime settings for the auth core.
type Config struct {
	Addr           string
	DatabaseDSN    string
	AuthSecret     string
	CSRFSecret     string
	GoogleClientID string

	SessionTTL time.Duration
	CSRFTTL    time.Duration

	RateWindow  time.Duration
	RateMax     int64
	RateAuthMax int64

	RevokeOnRefresh bool
	AllowedOrigins  []string
	EventRetention  time.Duration
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:           envOr(envAddr, ":8080"),
		DatabaseDSN:    strings.TrimSpace(os.Getenv(envPGDSN)),
		AuthSecret:     strings.TrimSpace(os.Getenv(envAuthSecret)),
		CSRFSecret:     strings.TrimSpace(os.Getenv(envCSRFSecret)),
		GoogleClientID: strings.TrimSpace(os.Getenv(envGoogleClientID)),
		SessionTTL:     maxSessionTTL,
		CSRFTTL:        24 * time.Hour,
		RateWindow:     time.Minute,
		RateMax:        100,
		RateAuthMax:    10,
		EventRetention: 30 * 24 * time.Hour,
	}

	var errs []error

	if len(cfg.AuthSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("%s must be at least %d bytes", envAuthSecret, minSecretLen))
	}
	if len(cfg.CSRFSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("%s must be at least %d bytes (no default is applied)", envCSRFSecret, minSecretLen))
	}
	if cfg.GoogleClientID == "" {
		errs = append(errs, fmt.Errorf("%s is required", envGoogleClientID))
	}
	if cfg.DatabaseDSN == "" {
		errs = append(errs, fmt.Errorf("%s is required", envPGDSN))
	}

	if raw := os.Getenv(envSessionTTL); raw != "" {
		d, err := time.ParseDuration(raw)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", envSessionTTL, err))
		case d <= 0 || d > maxSessionTTL:
			errs = append(errs, fmt.Errorf("%s must be within (0, %s]", envSessionTTL, maxSessionTTL))
		default:
			cfg.SessionTTL = d
		}
	}
	if raw := os.Getenv(envCSRFTTL); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive duration", envCSRFTTL))
		} else {
			cfg.CSRFTTL = d
		}
	}
	if raw := os.Getenv(envRateWindow); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive duration", envRateWindow))
		} else {
			cfg.RateWindow = d
		}
	}
	if v, err := envInt64(envRateMax, cfg.RateMax); err != nil {
		errs = append(errs, err)
	} else {
		cfg.RateMax = v
	}
	if v, err := envInt64(envRateAuthMax, cfg.RateAuthMax); err != nil {
		errs = append(errs, err)
	} else {
		cfg.RateAuthMax = v
	}
	if cfg.RateAuthMax > cfg.RateMax {
		errs = append(errs, fmt.Errorf("%s must not exceed %s", envRateAuthMax, envRateMax))
	}
	if raw := os.Getenv(envRevokeOnRefresh); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be a boolean", envRevokeOnRefresh))
		} else {
			cfg.RevokeOnRefresh = b
		}
	}
	if raw := os.Getenv(envEventRetention); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive duration", envEventRetention))
		} else {
			cfg.EventRetention = d
		}
	}
	cfg.AllowedOrigins = splitCSV(os.Getenv(envAllowedOrigins))

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt64(key string, def int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return v, nil
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
