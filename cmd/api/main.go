package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicpulse/outreach/cmd/mainconfig"
	"github.com/clinicpulse/outreach/internal/api/router"
	"github.com/clinicpulse/outreach/internal/appointments"
	"github.com/clinicpulse/outreach/internal/channels"
	"github.com/clinicpulse/outreach/internal/channels/voice"
	"github.com/clinicpulse/outreach/internal/channels/whatsapp"
	"github.com/clinicpulse/outreach/internal/classify"
	appconfig "github.com/clinicpulse/outreach/internal/config"
	"github.com/clinicpulse/outreach/internal/followup"
	"github.com/clinicpulse/outreach/internal/http/handlers"
	"github.com/clinicpulse/outreach/internal/notify"
	"github.com/clinicpulse/outreach/internal/observability/metrics"
	"github.com/clinicpulse/outreach/internal/reconcile"
	"github.com/clinicpulse/outreach/internal/reminders"
	"github.com/clinicpulse/outreach/internal/requests"
	"github.com/clinicpulse/outreach/internal/throttle"
	"github.com/clinicpulse/outreach/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting outreach engine",
		"env", cfg.Env,
		"port", cfg.Port,
		"suppress_sends", cfg.SuppressSends,
	)

	location, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Error("invalid clinic timezone, falling back to UTC", "tz", cfg.ClinicTimezone, "error", err)
		location = time.UTC
	}

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	apptStore := appointments.NewStore(pool)
	requestStore := requests.NewStore(pool)
	outreachMetrics := metrics.NewOutreachMetrics(nil)

	// Outbound cooldown throttle (optional, requires Redis)
	var cooldown *throttle.Cooldown
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, outbound cooldown disabled", "error", err)
		} else {
			cooldown = throttle.NewCooldown(rdb, cfg.CooldownWindow, cfg.CooldownMaxSends, logger)
			defer func() { _ = rdb.Close() }()
		}
	}

	// WhatsApp channel. In suppression mode the engine runs without gateway
	// credentials; otherwise they are mandatory.
	var textMessenger channels.TextMessenger
	waClient, err := whatsapp.New(whatsapp.Config{
		APIURL:     cfg.WhatsAppAPIURL,
		APIKey:     cfg.WhatsAppAPIKey,
		FromNumber: cfg.WhatsAppFromNumber,
		Logger:     logger,
	})
	switch {
	case err == nil:
		textMessenger = waClient
	case cfg.SuppressSends:
		logger.Warn("whatsapp gateway unconfigured, sends will be simulated", "error", err)
	default:
		logger.Error("whatsapp gateway unavailable", "error", err)
		os.Exit(1)
	}
	textMessenger = channels.WrapTextMessenger(textMessenger, channels.SuppressConfig{Enabled: cfg.SuppressSends, Logger: logger})
	textMessenger = throttle.WrapTextMessenger(textMessenger, cooldown)

	// Voice channel (optional; voice rungs and manual calls degrade without it)
	var caller channels.CallPlacer
	voiceClient, err := voice.New(voice.Config{
		APIURL:     cfg.VoiceAPIURL,
		APIKey:     cfg.VoiceAPIKey,
		FromNumber: cfg.VoiceFromNumber,
		Logger:     logger,
	})
	if err != nil {
		logger.Warn("voice provider unconfigured", "error", err)
	} else {
		caller = voiceClient
	}
	caller = channels.WrapCallPlacer(caller, channels.SuppressConfig{Enabled: cfg.SuppressSends, Logger: logger})

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// Intent classifier
	classifierProvider, backend, reason := classify.BuildProvider(ctx, classify.ProviderSelectionConfig{
		Preference:     cfg.ClassifierProvider,
		BedrockAPI:     bedrockruntime.NewFromConfig(awsCfg),
		BedrockModelID: cfg.BedrockModelID,
		GeminiAPIKey:   cfg.GeminiAPIKey,
		GeminiModelID:  cfg.GeminiModelID,
	}, logger)
	if classifierProvider == nil {
		logger.Warn("no classifier backend available, intents will fail closed to unclear", "reason", reason)
	} else {
		logger.Info("classifier backend selected", "backend", backend)
	}
	classifier := classify.NewService(classifierProvider, logger)

	// Staff alert email: SendGrid when configured, otherwise SES
	var emailSender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		emailSender = sg
	} else if ses := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); ses != nil {
		emailSender = ses
	}
	alerts := notify.NewStaffAlerts(emailSender, cfg.StaffAlertEmail, cfg.ClinicName, logger)

	// Orchestration jobs
	scheduler := reminders.NewScheduler(apptStore, textMessenger, reminders.Config{
		Location:           location,
		DefaultCountryCode: cfg.DefaultCountryCode,
		ClinicName:         cfg.ClinicName,
		Template24Hour:     cfg.Reminder24TemplateID,
		Template2Hour:      cfg.Reminder2TemplateID,
		WindowMin:          cfg.TwoHourWindowMin,
		WindowMax:          cfg.TwoHourWindowMax,
	}, outreachMetrics, logger)
	detector := followup.NewDetector(apptStore, textMessenger, followup.DetectorConfig{
		Location:           location,
		GracePeriod:        cfg.NoShowGracePeriod,
		ClinicName:         cfg.ClinicName,
		DefaultCountryCode: cfg.DefaultCountryCode,
		NoShowTemplateID:   cfg.NoShowTemplateID,
	}, outreachMetrics, logger)
	sequencer := followup.NewSequencer(apptStore, textMessenger, caller, followup.SequencerConfig{
		Location:           location,
		ClinicName:         cfg.ClinicName,
		DefaultCountryCode: cfg.DefaultCountryCode,
	}, outreachMetrics, logger)

	reconciler := reconcile.NewReconciler(apptStore, classifier, requestStore, textMessenger, alerts, reconcile.Config{
		Location:           location,
		DefaultCountryCode: cfg.DefaultCountryCode,
		ClinicName:         cfg.ClinicName,
	}, outreachMetrics, logger)
	resolver := requests.NewResolver(requestStore, apptStore, textMessenger, cfg.ClinicName, location, logger)

	// HTTP surface
	routerCfg := &router.Config{
		Logger:        logger,
		CallOutcome:   handlers.NewCallOutcomeHandler(reconciler, voice.NewWebhookVerifier(cfg.VoiceWebhookSecret), outreachMetrics, logger),
		StaffRequests: handlers.NewStaffRequestsHandler(resolver, requestStore, logger),
		ManualCall: handlers.NewManualCallHandler(apptStore, caller, handlers.ManualCallConfig{
			ClinicName:         cfg.ClinicName,
			DefaultCountryCode: cfg.DefaultCountryCode,
			Location:           location,
		}, outreachMetrics, logger),
		Jobs: handlers.NewJobsHandler(handlers.JobsConfig{
			Reminders24Hour: scheduler.Run24Hour,
			Reminders2Hour:  scheduler.Run2Hour,
			NoShows:         detector.Run,
			Followups:       sequencer.Run,
			Logger:          logger,
		}),
		MetricsHandler:  promhttp.Handler(),
		StaffAuthSecret: cfg.AdminJWTSecret,
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
