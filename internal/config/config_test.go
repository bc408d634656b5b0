package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("MEDOS_BASE_URL", "")
	t.Setenv("SESSION_TTL", "")
	t.Setenv("PAYMENT_MODE", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("MEDOS_TIMEOUT", "")
	t.Setenv("SESSION_LOCK_TTL", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.MedosBaseURL != "https://api.medos.one/v1" {
		t.Fatalf("expected default medos base url, got %s", cfg.MedosBaseURL)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected default session ttl, got %s", cfg.SessionTTL)
	}
	if cfg.SessionLockTTL != 65*time.Second {
		t.Fatalf("expected lock ttl to outlive four medos timeouts, got %s", cfg.SessionLockTTL)
	}
	if cfg.PaymentMode != "CASH" {
		t.Fatalf("expected CASH payment mode, got %s", cfg.PaymentMode)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("expected no CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MEDOS_API_KEY", "mk_test")
	t.Setenv("MEDOS_TIMEOUT", "3s")
	t.Setenv("SESSION_LOCK_TTL", "5s")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://clinic.example, ,https://www.clinic.example")
	t.Setenv("PAYMENT_MODE", "online")
	t.Setenv("EMAIL_PROVIDER", " SES ")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.MedosAPIKey != "mk_test" {
		t.Fatalf("expected api key override, got %s", cfg.MedosAPIKey)
	}
	if cfg.MedosTimeout != 3*time.Second {
		t.Fatalf("expected timeout override, got %s", cfg.MedosTimeout)
	}
	if cfg.SessionLockTTL != 17*time.Second {
		t.Fatalf("expected lock ttl raised to cover medos calls, got %s", cfg.SessionLockTTL)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected rate override, got %v", cfg.RateLimitRPS)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://www.clinic.example" {
		t.Fatalf("unexpected CORS origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.PaymentMode != "ONLINE" {
		t.Fatalf("expected ONLINE, got %s", cfg.PaymentMode)
	}
	if cfg.EmailProvider != "ses" {
		t.Fatalf("expected ses provider, got %q", cfg.EmailProvider)
	}
}

func TestClinicLocation(t *testing.T) {
	cfg := &Config{ClinicTimezone: "Asia/Kolkata"}
	if got := cfg.ClinicLocation().String(); got != "Asia/Kolkata" {
		t.Fatalf("location = %s", got)
	}
	cfg.ClinicTimezone = "Not/AZone"
	if cfg.ClinicLocation() != time.UTC {
		t.Fatalf("expected UTC fallback")
	}
}

func TestSessionLockTTLKeepsLongerOverride(t *testing.T) {
	t.Setenv("MEDOS_TIMEOUT", "2s")
	t.Setenv("SESSION_LOCK_TTL", "90s")
	if got := Load().SessionLockTTL; got != 90*time.Second {
		t.Fatalf("expected 90s lock ttl, got %s", got)
	}
}
