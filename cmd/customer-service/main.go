// Command customer-service manages customers, consumes order.created events
// into their order history and serves both over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storefront/internal/config"
	"storefront/internal/consumers"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/handlers"
	"storefront/internal/logging"
	"storefront/internal/middleware"
	"storefront/internal/repositories"
	"storefront/internal/services"
	"storefront/internal/telemetry"
	"storefront/internal/validation"
	"storefront/pkg/kafka"
	"storefront/pkg/rabbitmq"
	"storefront/pkg/sqs"
)

const serviceName = "customer-service"

// consumer delivers broker messages to a handler until its context ends.
type consumer interface {
	Run(ctx context.Context, handler events.HandlerFunc) error
	Close() error
}

type rabbitConsumer struct{ *rabbitmq.Client }

func (c rabbitConsumer) Run(ctx context.Context, handler events.HandlerFunc) error {
	return c.ConsumeOrderEvents(ctx, handler)
}

type sqsConsumer struct{ *sqs.Consumer }

func (sqsConsumer) Close() error { return nil }

type customerApp struct {
	app     *fiber.App
	db      *gorm.DB
	handler *consumers.OrderCreatedHandler
}

func newCustomerApp(cfg *config.Config, logger *zap.Logger) (*customerApp, error) {
	db, err := database.Open(cfg.CustomerDatabase)
	if err != nil {
		return nil, err
	}
	if err := database.MigrateCustomer(db); err != nil {
		return nil, err
	}

	customerRepo := repositories.NewGORMCustomerRepository(db)
	customerService := services.NewCustomerService(customerRepo, validation.New(), logger)
	service := services.NewCustomerOrderService(repositories.NewGORMCustomerOrderRepository(db), customerRepo, logger)

	app := fiber.New(fiber.Config{AppName: serviceName})
	app.Use(middleware.Tracing(serviceName))
	app.Use(middleware.RequestLogger(logger))
	apiV1 := app.Group("/api/v1")
	handlers.NewCustomerHandler(customerService, logger).RegisterRoutes(apiV1)
	handlers.NewCustomerOrderHandler(service, logger).RegisterRoutes(apiV1)
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "time": time.Now().Format(time.RFC3339)})
	})

	return &customerApp{
		app:     app,
		db:      db,
		handler: consumers.NewOrderCreatedHandler(service, logger.Named("consumer")),
	}, nil
}

func (a *customerApp) close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newConsumer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (consumer, error) {
	switch cfg.Broker {
	case config.BrokerRabbitMQ:
		client, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQ.URL, Queue: cfg.RabbitMQ.Queue}, logger)
		if err != nil {
			return nil, err
		}
		return rabbitConsumer{client}, nil
	case config.BrokerKafka:
		return kafka.NewConsumer(cfg.Kafka, cfg.Outbox.PublishRetries, logger), nil
	case config.BrokerSQS:
		client, err := sqs.NewClient(ctx, cfg.SQS)
		if err != nil {
			return nil, err
		}
		return sqsConsumer{sqs.NewConsumer(client, cfg.SQS.QueueURL, logger)}, nil
	default:
		return nil, fmt.Errorf("broker %q has no consumer", cfg.Broker)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(serviceName, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Telemetry.ServiceName = serviceName
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	a, err := newCustomerApp(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}

	c, err := newConsumer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize consumer", zap.Error(err))
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := c.Run(ctx, a.handler.Handle); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Consumer stopped", zap.Error(err))
			stop()
		}
	}()

	go func() {
		logger.Info("Starting server", zap.String("port", cfg.CustomerAppPort), zap.String("broker", cfg.Broker))
		if err := a.app.Listen(cfg.CustomerAppPort); err != nil {
			logger.Error("Server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down customer service...")

	if err := a.app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("Error during Fiber shutdown", zap.Error(err))
	}
	<-consumerDone
	if err := c.Close(); err != nil {
		logger.Error("Error closing consumer", zap.Error(err))
	}
	if err := a.close(); err != nil {
		logger.Error("Error closing database", zap.Error(err))
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Error("Error flushing traces", zap.Error(err))
	}
	logger.Info("Customer service gracefully stopped")
}
