package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/deepchat/deepchat-backend/internal/api"
	"github.com/deepchat/deepchat-backend/internal/config"
	"github.com/deepchat/deepchat-backend/internal/database"
	"github.com/deepchat/deepchat-backend/internal/llm"
	"github.com/deepchat/deepchat-backend/internal/pubsub"
	"github.com/deepchat/deepchat-backend/internal/repository"
	"github.com/deepchat/deepchat-backend/internal/repository/postgres"
	"github.com/deepchat/deepchat-backend/internal/services"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(os.Getenv("DEEPCHAT_LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	sessionEvents := pubsub.NewBroker[repository.Session]()
	messageEvents := pubsub.NewBroker[repository.Message]()
	defer sessionEvents.Shutdown()
	defer messageEvents.Shutdown()

	sessionRepo := postgres.NewSessionRepository(db.DB, sessionEvents)
	messageRepo := postgres.NewMessageRepository(db.DB, messageEvents)
	chatStore := postgres.NewChatStore(db.DB, sessionEvents, messageEvents)

	transport := llm.NewClient(cfg.DeepSeek)

	svc := services.NewServices(cfg, sessionRepo, messageRepo, chatStore, transport, log)

	app := fiber.New(fiber.Config{
		AppName:      "DeepChat Backend",
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins(),
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	api.SetupRoutes(app, svc, api.Brokers{
		Sessions: sessionEvents,
		Messages: messageEvents,
	}, log)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Info("shutting down")
		if err := app.Shutdown(); err != nil {
			log.WithError(err).Error("shutdown failed")
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.WithField("addr", addr).Info("deepchat backend starting")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Fatal("failed to start server")
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}

func corsOrigins() string {
	origins := os.Getenv("DEEPCHAT_CORS_ORIGINS")
	if origins == "" {
		return "http://localhost:1420,http://localhost:5173,http://localhost:3000"
	}
	return origins
}
