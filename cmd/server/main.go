package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"lemonhealth.app/backend/internal/api"
	"lemonhealth.app/backend/internal/auth"
	"lemonhealth.app/backend/internal/config"
	"lemonhealth.app/backend/internal/core"
	"lemonhealth.app/backend/internal/i18n"
	"lemonhealth.app/backend/internal/llm"
	"lemonhealth.app/backend/internal/logging"
	"lemonhealth.app/backend/internal/sms"
	"lemonhealth.app/backend/internal/storage"
	"lemonhealth.app/backend/internal/store"
)

const documentWorkers = 2

func main() {
	// Command line flag for seeding the topic catalog
	seedPromptsFlag := flag.Bool("seed-prompts", false, "Seed the chat topic catalog and exit")
	flag.Parse()

	// Load configuration
	cfg, dotenv, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	if !dotenv {
		logger.Debug("no .env file found, using process environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database store
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	added, err := db.SeedPrompts(ctx, core.DefaultPrompts)
	if err != nil {
		logger.Fatal("failed to seed prompts", zap.Error(err))
	}
	if *seedPromptsFlag {
		logger.Info("prompt seeding complete", zap.Int("added", added))
		return
	}

	if err := run(ctx, cfg, db, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("server exiting gracefully")
}

func run(ctx context.Context, cfg *config.Config, db *store.Store, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := core.NewMetrics(reg)

	// Token blacklist
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis is unreachable, token revocation checks will fail", zap.Error(err))
	}

	// LLM provider behind the gateway
	provider, closeProvider, err := llm.NewProviderFromConfig(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	defer closeProvider()
	gateway := llm.NewGateway(provider, cfg.LLMTimeout, logger, llm.NewMetrics(reg))

	var sender sms.Sender = sms.NewLogSender(logger)
	if cfg.SMSEnabled() {
		sender = sms.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber, logger)
	} else {
		logger.Warn("twilio is not configured, verification codes are only logged")
	}

	var uploader storage.Uploader = storage.NewLocalUploader(cfg.MediaRoot, cfg.BaseURL)
	mediaRoot := cfg.MediaRoot
	if cfg.CloudinaryURL != "" {
		cld, err := storage.NewCloudinaryUploader(cfg.CloudinaryURL)
		if err != nil {
			return fmt.Errorf("failed to initialize cloudinary: %w", err)
		}
		uploader, mediaRoot = cld, ""
	}

	translator, err := i18n.NewTranslator(db, logger)
	if err != nil {
		return fmt.Errorf("failed to load translations: %w", err)
	}

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	otp := core.NewOTPService(db, sender, cfg.VerificationCodeTTL, cfg.OTPRatePerMinute, logger, metrics)
	classifier := core.NewDefaultClassifier(gateway, logger)
	completion := core.NewProfileCompletion(db, classifier, core.NewProfileExtractor(gateway, logger), gateway, logger, metrics)
	documents := core.NewDocumentService(db, uploader, gateway, documentWorkers, logger)
	documents.Start(ctx)
	defer documents.Stop()

	apiHandler := api.NewAPIHandler(api.Services{
		Auth:      core.NewAuthService(db, tokens, auth.NewRedisBlacklist(rdb), otp, logger),
		Profiles:  core.NewProfileService(db, uploader, logger),
		Chat:      core.NewChatService(db, completion, core.NewGuardrail(gateway, logger, metrics), classifier, gateway, cfg.ChatHistoryLimit, logger),
		Documents: documents,
		Admin:     core.NewAdminService(db, logger),
	}, translator, logger, cfg.BaseURL, cfg.StreamChunkDelay)
	router := api.NewRouter(apiHandler, api.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		MediaRoot:      mediaRoot,
		StaticRoot:     "static",
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", serverAddr), zap.String("llm_provider", provider.Name()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// This gives active connections time to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
