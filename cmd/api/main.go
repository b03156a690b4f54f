package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codegrade-api/internal/config"
	"github.com/noah-isme/codegrade-api/internal/database"
	"github.com/noah-isme/codegrade-api/internal/events"
	"github.com/noah-isme/codegrade-api/internal/handler"
	"github.com/noah-isme/codegrade-api/internal/middleware"
	"github.com/noah-isme/codegrade-api/internal/models"
	"github.com/noah-isme/codegrade-api/internal/repository"
	"github.com/noah-isme/codegrade-api/internal/router"
	"github.com/noah-isme/codegrade-api/internal/service"
	"github.com/noah-isme/codegrade-api/pkg/ai"
	"github.com/noah-isme/codegrade-api/pkg/payment"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PoolOptions{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Task{}, &models.PaymentRecord{}, &models.PaymentOrder{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to access database pool: %v", err)
	}
	defer sqlDB.Close()

	probes := map[string]handler.HealthProbe{"database": sqlDB.PingContext}

	// Redis only backs the summary cache; run uncached without it.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, summary cache disabled")
		} else {
			defer redisClient.Close()
			probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		}
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATSURL != "" {
		conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, domain events disabled")
		} else {
			defer conn.Drain()
			publisher = events.NewNATSPublisher(conn, cfg.EventSubjectPrefix, logger)
			probes["nats"] = natsProbe(conn)
		}
	}

	generator, err := ai.NewOpenAIGenerator(ai.OpenAIConfig{
		Provider: cfg.AIProvider,
		APIKey:   cfg.AIKey(),
		Model:    cfg.AIModel,
		BaseURL:  cfg.AIBaseURL,
		JSONMode: true,
		Timeout:  cfg.EvaluationTimeout,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("failed to create evaluator: %v", err)
	}

	processor, err := payment.NewRazorpayProcessor(payment.RazorpayConfig{
		KeyID:     cfg.RazorpayKeyID,
		KeySecret: cfg.RazorpayKeySecret,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("failed to create payment processor: %v", err)
	}

	signer, err := payment.NewSigner(cfg.RazorpayKeySecret)
	if err != nil {
		log.Fatalf("failed to create payment signer: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	taskRepo := repository.NewTaskRepository(db)
	paymentRepo := repository.NewPaymentRecordRepository(db)
	orderRepo := repository.NewPaymentOrderRepository(db)
	reportCache := service.NewReportCache(redisClient, cfg.SummaryCacheTTL, logger)

	evaluationService := service.NewEvaluationService(taskRepo, generator, publisher, reportCache, validate, logger, service.EvaluationConfig{
		Timeout: cfg.EvaluationTimeout,
	})
	intentService := service.NewPaymentIntentService(taskRepo, orderRepo, processor, logger, service.PaymentIntentConfig{
		KeyID:   processor.KeyID(),
		Timeout: cfg.PaymentTimeout,
	})
	verifier := service.NewPaymentVerifier(taskRepo, paymentRepo, orderRepo, signer, publisher, reportCache, validate, logger)
	queryService := service.NewTaskQueryService(taskRepo, paymentRepo, reportCache, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.EvaluationTimeout + 10*time.Second,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.AllowOrigins,
		AccessLog:    cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		EvaluationHandler: handler.NewEvaluationHandler(evaluationService, logger),
		PaymentHandler:    handler.NewPaymentHandler(intentService, verifier, validate, logger),
		TaskHandler:       handler.NewTaskHandler(queryService, logger),
		HealthProbes:      probes,
		JWTMiddleware:     middleware.JWTIdentity(cfg.JWTSecret),
		EvaluateLimiter:   middleware.RateLimit("evaluate", cfg.EvaluateRateLimit, cfg.EvaluateRateWindow),
		Logger:            logger,
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Str("ai_provider", cfg.AIProvider).Msg("starting server")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, logger)
}

func natsProbe(conn *nats.Conn) handler.HealthProbe {
	return func(context.Context) error {
		if !conn.IsConnected() {
			return nats.ErrConnectionClosed
		}
		return nil
	}
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
