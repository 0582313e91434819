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
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/handlers"
	"storefront/internal/logging"
	"storefront/internal/middleware"
	"storefront/internal/outbox"
	"storefront/internal/repositories"
	"storefront/internal/services"
	"storefront/internal/telemetry"
	"storefront/internal/validation"
	"storefront/pkg/kafka"
	"storefront/pkg/rabbitmq"
	"storefront/pkg/sqs"
)

const serviceName = "product-order-service"

// application holds the wired product/order service.
type application struct {
	app        *fiber.App
	db         *gorm.DB
	outbox     repositories.OutboxRepository
	publisher  events.Publisher
	dispatcher *outbox.Dispatcher
	logger     *zap.Logger
}

// newApplication opens the database, picks the broker publisher and registers
// every route. The outbox dispatcher is built but not started.
func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.MigrateProductOrder(db); err != nil {
		return nil, err
	}

	publisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	store := repositories.NewStore(db)
	dispatcher := outbox.NewDispatcher(store.Outbox, publisher, logger.Named("outbox"), cfg.Outbox)

	validate := validation.New()
	productService := services.NewProductService(store.Products, validate)
	orderService := services.NewOrderService(store, dispatcher, validate, logger)

	app := fiber.New(fiber.Config{AppName: serviceName})
	app.Use(middleware.Tracing(serviceName))
	app.Use(middleware.RequestLogger(logger))

	apiV1 := app.Group("/api/v1")
	handlers.NewProductHandler(productService, logger).RegisterRoutes(apiV1)
	handlers.NewOrderHandler(orderService, logger).RegisterRoutes(apiV1)

	a := &application{app: app, db: db, outbox: store.Outbox, publisher: publisher, dispatcher: dispatcher, logger: logger}
	app.Get("/health", a.health)
	return a, nil
}

func (a *application) health(c *fiber.Ctx) error {
	status, code := "healthy", fiber.StatusOK
	pending, err := a.outbox.CountPending(c.UserContext())
	if err != nil {
		status, code = "degraded", fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":         status,
		"time":           time.Now().Format(time.RFC3339),
		"pending_events": pending,
	})
}

// close releases the publisher and the database connection.
func (a *application) close() error {
	var errs []error
	if err := a.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close publisher: %w", err))
	}
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// newPublisher builds the events.Publisher for the configured broker.
func newPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (events.Publisher, error) {
	switch cfg.Broker {
	case config.BrokerRabbitMQ:
		client, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQ.URL, Queue: cfg.RabbitMQ.Queue}, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.BrokerKafka:
		return kafka.NewPublisher(cfg.Kafka), nil
	case config.BrokerSQS:
		client, err := sqs.NewClient(ctx, cfg.SQS)
		if err != nil {
			return nil, err
		}
		return sqs.NewPublisher(client, cfg.SQS.QueueURL), nil
	case config.BrokerLog:
		return events.NewLogPublisher(logger), nil
	default:
		return nil, fmt.Errorf("unsupported broker %q", cfg.Broker)
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

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = serviceName
	}
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	a, err := newApplication(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}

	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		a.dispatcher.Run(ctx)
	}()

	go func() {
		logger.Info("Starting server", zap.String("port", cfg.AppPort), zap.String("broker", cfg.Broker))
		if err := a.app.Listen(cfg.AppPort); err != nil {
			logger.Error("Server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	if err := a.app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("Error during Fiber shutdown", zap.Error(err))
	}
	<-dispatcherDone
	if err := a.close(); err != nil {
		logger.Error("Error releasing resources", zap.Error(err))
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Error("Error flushing traces", zap.Error(err))
	}
	logger.Info("Server gracefully stopped")
}
