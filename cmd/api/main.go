package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/medos-booking/internal/api/router"
	"github.com/wolfman30/medos-booking/internal/bookings"
	appconfig "github.com/wolfman30/medos-booking/internal/config"
	"github.com/wolfman30/medos-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/medos-booking/internal/http/middleware"
	"github.com/wolfman30/medos-booking/internal/notify"
	"github.com/wolfman30/medos-booking/internal/wizard"
	"github.com/wolfman30/medos-booking/pkg/logging"
)

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting medos booking API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsHandler, bookingMetrics := setupMetrics()
	loc := cfg.ClinicLocation()

	services, err := setupMedos(ctx, cfg, bookingMetrics, logger)
	if err != nil {
		logger.Error("failed to initialise medos client", "error", err)
		os.Exit(1)
	}

	checks := map[string]router.HealthCheck{}
	store, redisClient := setupSessionStore(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var repo *bookings.Repository
	if pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger); pool != nil {
		defer pool.Close()
		repo = bookings.NewRepository(pool)
		checks["postgres"] = pool.Ping
	}

	sender := setupEmailSender(ctx, cfg, logger)
	notifier := notify.NewService(sender, cfg.ClinicName, logger)
	bookingService := bookings.NewService(repo, notifier, logger)

	widget := handlers.NewWidgetHandler(handlers.WidgetConfig{
		Store:    store,
		Services: services,
		Recorder: bookingService,
		Observer: bookingMetrics,
		HTTP:     bookingMetrics,
		Location: loc,
		Payment:  wizard.PaymentMode(cfg.PaymentMode),
		Logger:   logger,

		LockRefresh: cfg.SessionLockTTL / 3,
	})

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.RunJanitor(ctx, 5*time.Minute, 10*time.Minute)

	r := router.New(&router.Config{
		Logger:             logger,
		Widget:             widget.Routes(),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		HealthChecks:       checks,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.MedosTimeout*2 + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
