package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"story-server/internal/config"
	"story-server/internal/imagegen"
	"story-server/internal/logger"
	"story-server/internal/messaging"
	"story-server/internal/platform"
	"story-server/internal/poller"
	"story-server/internal/service"
	"story-server/internal/worker"
)

const reconnectDelay = 5 * time.Second

func main() {
	cfg, err := config.ReadWorker()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	zap.ReplaceGlobals(appLogger)
	appLogger.Info("Starting illustration worker...", zap.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := platform.SetupStores(ctx, cfg, false, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to set up story stores", zap.Error(err))
	}
	defer closeStores()

	imageClient, err := imagegen.NewClient(cfg.Image, &http.Client{Timeout: cfg.Image.Timeout}, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create image client", zap.Error(err))
	}
	pollRegistry := poller.NewRegistry(
		poller.New(poller.Config{MaxAttempts: cfg.Poller.MaxAttempts, Interval: cfg.Poller.Interval}, appLogger),
		appLogger, poller.WithMaxSessions(cfg.Poller.MaxSessions))
	defer pollRegistry.Close()

	// Соединение пересоздается после разрыва, пока не получен сигнал остановки.
	for {
		err := runSession(ctx, cfg, stores, imageClient, pollRegistry, appLogger)
		if ctx.Err() != nil {
			break
		}
		appLogger.Warn("RabbitMQ session ended, reconnecting", zap.Error(err), zap.Duration("delay", reconnectDelay))
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	appLogger.Info("Illustration worker shut down gracefully")
}

// runSession обслуживает одно соединение с RabbitMQ до его разрыва или отмены ctx.
func runSession(
	ctx context.Context,
	cfg *config.Config,
	stores service.Stores,
	images service.ImageClient,
	registry *poller.Registry,
	logger *zap.Logger,
) error {
	conn, err := messaging.Dial(ctx, cfg.RabbitMQ.URL, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	notificationPub, err := messaging.NewRabbitMQPublisher(conn, cfg.RabbitMQ.NotificationQueueName, logger)
	if err != nil {
		return err
	}
	defer notificationPub.Close()

	illustrator := service.NewIllustrator(images, registry, stores,
		messaging.NewNotificationPublisher(notificationPub), cfg.Image.PromptTemplate, logger)
	handler := worker.NewHandler(logger, illustrator, cfg.PushGatewayURL)
	consumer := messaging.NewConsumer(conn, cfg.RabbitMQ.TaskQueueName, cfg.RabbitMQ.ConsumerName, handler, logger)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	closed := conn.NotifyClose(make(chan *amqp091.Error, 1))
	go func() {
		select {
		case closeErr := <-closed:
			logger.Warn("RabbitMQ connection closed", zap.Error(closeErr))
			cancel()
		case <-sessionCtx.Done():
		}
	}()

	err = consumer.Run(sessionCtx)
	if err == nil && ctx.Err() == nil {
		return errors.New("consumer stopped after connection loss")
	}
	return err
}
