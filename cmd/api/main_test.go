package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	appconfig "github.com/wolfman30/medos-booking/internal/config"
	"github.com/wolfman30/medos-booking/internal/medos"
	"github.com/wolfman30/medos-booking/internal/notify"
	"github.com/wolfman30/medos-booking/internal/sessions"
	"github.com/wolfman30/medos-booking/pkg/logging"
)

func TestSetupMetricsExposesBookingMetrics(t *testing.T) {
	handler, m := setupMetrics()
	if handler == nil || m == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	m.ObserveStep("phone_verification", "location_doctor")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "medos_wizard_step_transitions_total") {
		t.Fatalf("expected step counter to be exported")
	}
}

func TestConnectPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	if pool := connectPostgresPool(context.Background(), "", logging.Discard()); pool != nil {
		t.Fatalf("expected nil pool for empty URL")
	}
}

func TestSetupSessionStoreUsesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr(), SessionTTL: time.Minute, SessionLockTTL: time.Second}

	store, client := setupSessionStore(context.Background(), cfg, logging.Discard())
	if client == nil {
		t.Fatal("expected redis client")
	}
	defer client.Close()
	if _, ok := store.(*sessions.RedisStore); !ok {
		t.Fatalf("expected RedisStore, got %T", store)
	}
}

func TestSetupSessionStoreFallsBackInDevelopment(t *testing.T) {
	cfg := &appconfig.Config{Env: "development", RedisAddr: "127.0.0.1:1", SessionTTL: time.Minute}

	store, client := setupSessionStore(context.Background(), cfg, logging.Discard())
	if client != nil {
		t.Fatal("expected no redis client")
	}
	if _, ok := store.(*sessions.MemoryStore); !ok {
		t.Fatalf("expected MemoryStore, got %T", store)
	}
}

func TestSetupEmailSender(t *testing.T) {
	logger := logging.Discard()

	cfg := &appconfig.Config{EmailProvider: "auto", SendGridAPIKey: "sg-key", SendGridFromEmail: "clinic@example.com"}
	if _, ok := setupEmailSender(context.Background(), cfg, logger).(*notify.SendGridSender); !ok {
		t.Fatal("expected SendGrid sender when an API key is set")
	}

	cfg = &appconfig.Config{EmailProvider: "auto"}
	if _, ok := setupEmailSender(context.Background(), cfg, logger).(*notify.StubEmailSender); !ok {
		t.Fatal("expected stub sender without a provider")
	}

	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg = &appconfig.Config{EmailProvider: "ses", SESFromEmail: "clinic@example.com", AWSRegion: "us-east-1"}
	if _, ok := setupEmailSender(context.Background(), cfg, logger).(*notify.SESSender); !ok {
		t.Fatal("expected SES sender")
	}
}

func TestSetupMedosRequiresCredentials(t *testing.T) {
	cfg := &appconfig.Config{MedosBaseURL: "http://127.0.0.1:1"}
	if _, err := setupMedos(context.Background(), cfg, nil, logging.Discard()); err != medos.ErrNoCredentials {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestSetupMedosWithSessionToken(t *testing.T) {
	cfg := &appconfig.Config{MedosBaseURL: "http://127.0.0.1:1", MedosSessionToken: "preset-token"}
	services, err := setupMedos(context.Background(), cfg, nil, logging.Discard())
	if err != nil {
		t.Fatalf("setupMedos() error = %v", err)
	}
	if services.Appointments == nil || services.Patients == nil || services.Workspace == nil {
		t.Fatalf("expected all services, got %+v", services)
	}
}
