package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medos-booking/cmd/mainconfig"
	appconfig "github.com/wolfman30/medos-booking/internal/config"
	"github.com/wolfman30/medos-booking/internal/medos"
	"github.com/wolfman30/medos-booking/internal/notify"
	"github.com/wolfman30/medos-booking/internal/observability/metrics"
	"github.com/wolfman30/medos-booking/internal/sessions"
	"github.com/wolfman30/medos-booking/internal/wizard"
	"github.com/wolfman30/medos-booking/pkg/logging"
)

// setupMetrics registers booking collectors on a private registry.
func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewBookingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

// setupMedos prefers exchanging the API key; a preset session token is used
// when no key is configured.
func setupMedos(ctx context.Context, cfg *appconfig.Config, observer medos.RequestObserver, logger *logging.Logger) (wizard.Services, error) {
	clientCfg := medos.Config{
		BaseURL:      cfg.MedosBaseURL,
		APIKey:       cfg.MedosAPIKey,
		SessionToken: cfg.MedosSessionToken,
		Timeout:      cfg.MedosTimeout,
		Logger:       logger,
		Observer:     observer,
	}

	var (
		client *medos.Client
		err    error
	)
	if strings.TrimSpace(cfg.MedosSessionToken) != "" {
		client, err = medos.InitWithSession(clientCfg)
	} else {
		client, err = medos.Init(ctx, clientCfg)
	}
	if err != nil {
		return wizard.Services{}, err
	}

	return wizard.Services{
		Workspace:    medos.NewWorkspaceService(client),
		Appointments: medos.NewAppointmentService(client, cfg.ClinicLocation()),
		Patients:     medos.NewPatientService(client),
	}, nil
}

// setupSessionStore connects to Redis, falling back to an in-process store in
// development when Redis is unreachable.
func setupSessionStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (sessions.Store, *redis.Client) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		logger.Warn("REDIS_ADDR not set, using in-memory session store")
		return sessions.NewMemoryStore(cfg.SessionTTL), nil
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		if cfg.Env == "production" {
			logger.Error("redis unreachable", "error", err, "addr", cfg.RedisAddr)
			return sessions.NewRedisStore(client, cfg.SessionTTL, cfg.SessionLockTTL), client
		}
		_ = client.Close()
		logger.Warn("redis unreachable, using in-memory session store", "error", err, "addr", cfg.RedisAddr)
		return sessions.NewMemoryStore(cfg.SessionTTL), nil
	}
	return sessions.NewRedisStore(client, cfg.SessionTTL, cfg.SessionLockTTL), client
}

// connectPostgresPool returns nil when no database is configured or reachable;
// the confirmation ledger is optional.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres unreachable, booking ledger disabled", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// setupEmailSender picks the confirmation email provider. "auto" prefers
// SendGrid, then SES; with neither configured emails are only logged.
func setupEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	provider := cfg.EmailProvider
	if provider == "" || provider == "auto" {
		switch {
		case cfg.SendGridAPIKey != "":
			provider = "sendgrid"
		case cfg.SESFromEmail != "":
			provider = "ses"
		default:
			provider = "stub"
		}
	}

	switch provider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  firstNonEmpty(cfg.ClinicName, cfg.SendGridFromName),
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("SENDGRID_API_KEY missing, confirmation emails disabled")
	case "ses":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config, confirmation emails disabled", "error", err)
			break
		}
		return notify.NewSESSender(mainconfig.NewSESClient(awsCfg, cfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  firstNonEmpty(cfg.ClinicName, cfg.SESFromName),
		}, logger)
	case "stub":
	default:
		logger.Warn("unknown EMAIL_PROVIDER, confirmation emails disabled", "provider", provider)
	}
	return notify.NewStubEmailSender(logger)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
