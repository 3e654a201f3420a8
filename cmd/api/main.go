package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/judging-portal/internal/config"
	"github.com/noah-isme/judging-portal/internal/database"
	"github.com/noah-isme/judging-portal/internal/handler"
	"github.com/noah-isme/judging-portal/internal/middleware"
	"github.com/noah-isme/judging-portal/internal/observability"
	"github.com/noah-isme/judging-portal/internal/repository"
	"github.com/noah-isme/judging-portal/internal/router"
	"github.com/noah-isme/judging-portal/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	observability.RegisterMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var documents repository.DocumentRepository
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := database.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		if err := db.AutoMigrate(&repository.DocumentRecord{}); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
		documents = repository.NewGormDocumentRepository(db)
	default:
		documents = repository.NewRedisDocumentRepository(redisClient, cfg.ChannelBase+":store")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer func() { _ = natsConn.Drain() }()
	}

	feed := service.NewChangeFeed(redisClient, cfg.ChannelBase, natsConn, logger)
	feed.Start(ctx)

	documentService := service.NewDocumentService(documents, feed, cfg.StoreBackend, logger)
	storeHandler := handler.NewStoreHandler(documentService, feed, cfg.BodyLimit, 30*time.Second, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    cfg.BodyLimit,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.AllowOrigins,
		AccessLog:    cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		StoreHandler: storeHandler,
		Probe:        documents.Ping,
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Str("backend", cfg.StoreBackend).Msg("store listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, cfg.ShutdownGrace)
}

func waitForShutdown(app *fiber.App, grace time.Duration) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	if grace <= 0 {
		grace = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
