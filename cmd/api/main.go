package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/proprep-api/internal/config"
	"github.com/noah-isme/proprep-api/internal/database"
	"github.com/noah-isme/proprep-api/internal/handler"
	"github.com/noah-isme/proprep-api/internal/middleware"
	"github.com/noah-isme/proprep-api/internal/repository"
	"github.com/noah-isme/proprep-api/internal/router"
	"github.com/noah-isme/proprep-api/internal/service"
	"github.com/noah-isme/proprep-api/pkg/ai"
	cloud "github.com/noah-isme/proprep-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()

	db, err := database.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := database.ConnectRedis(rootCtx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}

	interviewer, err := newInterviewer(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.AIProvider).Msg("failed to create interviewer")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	sessionRepo := repository.NewInterviewSessionRepository(db)
	finalizer := service.NewSessionFinalizer(sessionRepo, interviewer, service.FinalizerConfig{
		Timeout:         cfg.FinalizeTimeout,
		TranscriptLimit: cfg.TranscriptLimit,
		FeedbackLimit:   cfg.FeedbackLimit,
	}, logger)
	dashboardService := service.NewDashboardService(sessionRepo, redisClient, cfg.DashboardCacheTTL, logger)
	historyService := service.NewSessionHistoryService(sessionRepo, finalizer, dashboardService, logger)
	authService := service.NewAuthService(service.AuthConfig{
		Secret:       cfg.JWTSecret,
		DemoEmail:    cfg.DemoEmail,
		DemoPassword: cfg.DemoPassword,
		TokenTTL:     cfg.TokenTTL,
	}, validate, logger)

	deps := service.InterviewServiceDeps{
		Repository:  sessionRepo,
		Interviewer: interviewer,
		Finalizer:   finalizer,
		Cache:       dashboardService,
		Validator:   validate,
	}
	if redisClient != nil || natsConn != nil {
		deps.Events = service.NewInterviewEventBus(redisClient, natsConn, cfg.EventsChannel, logger)
	}

	cloudCfg := cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryFolder,
	}
	if cloudCfg.Enabled() {
		evidence, err := cloud.New(cloudCfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		deps.Evidence = evidence
	} else {
		logger.Info().Msg("cloudinary not configured, proctoring evidence will not be archived")
	}

	interviewService := service.NewInterviewService(deps, service.InterviewServiceConfig{
		ProctoringInterval: cfg.ProctoringInterval,
		IdleTTL:            cfg.SessionIdleTTL,
	}, logger)
	if err := interviewService.Run(rootCtx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start interview service")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    8 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.AllowOrigins,
		AccessLog:    cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(authService, logger),
		InterviewHandler: handler.NewInterviewHandler(interviewService, validate, logger),
		SessionHandler:   handler.NewSessionHandler(historyService, logger),
		DashboardHandler: handler.NewDashboardHandler(dashboardService, logger),
		JWTMiddleware:    middleware.JWTProtected(cfg.JWTSecret),
		HealthProbes:     healthProbes(db, redisClient, natsConn),
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Str("provider", cfg.AIProvider).Msg("api listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)

	stopRoot()
	interviewService.Shutdown()
	if natsConn != nil {
		natsConn.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info().Msg("server stopped")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.AppEnv == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("app", cfg.AppName).Logger()
}

func newInterviewer(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ai.Interviewer, error) {
	var (
		base ai.Interviewer
		err  error
	)
	switch cfg.AIProvider {
	case "gemini":
		base, err = ai.NewGeminiInterviewer(ctx, ai.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
			Logger: logger,
		})
	default:
		base, err = ai.NewOpenAIInterviewer(ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIURL,
			Logger:  logger,
		})
	}
	if err != nil {
		return nil, err
	}

	return ai.WithTimeouts(base, ai.Timeouts{
		Question:   cfg.QuestionTimeout,
		Feedback:   cfg.FeedbackTimeout,
		Proctoring: cfg.ProctoringTimeout,
		Summary:    cfg.ReportTimeout,
	}), nil
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	if natsConn != nil {
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}
	}
	return probes
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
}
