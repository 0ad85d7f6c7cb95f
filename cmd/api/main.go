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

	"github.com/velvetpages/chatroom-api/internal/chat"
	"github.com/velvetpages/chatroom-api/internal/config"
	"github.com/velvetpages/chatroom-api/internal/database"
	"github.com/velvetpages/chatroom-api/internal/handler"
	"github.com/velvetpages/chatroom-api/internal/middleware"
	"github.com/velvetpages/chatroom-api/internal/router"
	"github.com/velvetpages/chatroom-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDevelopment() {
		logger = logger.Level(zerolog.DebugLevel)
	}

	redisClient, err := connectRedis(cfg, logger)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	natsConn, err := connectNATS(cfg, logger)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	engineCfg := chat.Config{
		PublicLimit:       cfg.PublicMessageLimit,
		PrivateLimit:      cfg.PrivateMessageLimit,
		PrivateInactivity: cfg.PrivateInactivityTimeout,
		AwayIdle:          cfg.AwayIdleTimeout,
		OfflineIdle:       cfg.OfflineIdleTimeout,
	}

	chatroomService := service.NewChatroomService(engineCfg, redisClient, cfg.EventChannel, natsConn, validate, logger, cfg.SweepInterval, cfg.LastMessageCacheTTL)
	chatroomHandler := handler.NewChatroomHandler(chatroomService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ChatroomHandler: chatroomHandler,
	})

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	chatroomService.Start(serviceCtx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, cancel)
}

func connectRedis(cfg config.Config, logger zerolog.Logger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		logger.Info().Msg("redis url not set, running without cache and redis fan-out")
		return nil, nil
	}
	return database.ConnectRedis(cfg.RedisURL)
}

func connectNATS(cfg config.Config, logger zerolog.Logger) (*nats.Conn, error) {
	if cfg.NATSURL == "" {
		logger.Info().Msg("nats url not set, running without nats fan-out")
		return nil, nil
	}
	return database.ConnectNATS(cfg.NATSURL)
}

func waitForShutdown(app *fiber.App, cancel context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	cancel()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
