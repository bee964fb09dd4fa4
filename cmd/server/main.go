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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rabbitmq/amqp091-go"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"story-server/internal/auth"
	"story-server/internal/config"
	"story-server/internal/handler"
	"story-server/internal/imagegen"
	"story-server/internal/logger"
	"story-server/internal/messaging"
	"story-server/internal/platform"
	"story-server/internal/poller"
	"story-server/internal/service"
	"story-server/internal/storygen"
	"story-server/internal/ws"
)

func main() {
	cfg, err := config.Load()
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
	appLogger.Info("Starting story server...",
		zap.String("env", cfg.AppEnv),
		zap.String("illustration_mode", cfg.IllustrationMode))

	// --- Хранилища ---
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	stores, closeStores, err := platform.SetupStores(ctx, cfg, true, appLogger)
	cancel()
	if err != nil {
		appLogger.Fatal("Failed to set up story stores", zap.Error(err))
	}
	defer closeStores()

	// --- Генерация текста и изображений ---
	aiClient, err := storygen.NewAIClient(cfg.AI, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create AI client", zap.Error(err))
	}
	writer := storygen.NewWriter(aiClient, cfg.AI, appLogger)

	imageClient, err := imagegen.NewClient(cfg.Image, &http.Client{Timeout: cfg.Image.Timeout}, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create image client", zap.Error(err))
	}
	pollRegistry := poller.NewRegistry(
		poller.New(poller.Config{MaxAttempts: cfg.Poller.MaxAttempts, Interval: cfg.Poller.Interval}, appLogger),
		appLogger, poller.WithMaxSessions(cfg.Poller.MaxSessions))
	defer pollRegistry.Close()

	// --- Уведомления и диспетчер ---
	hub := ws.NewHub(appLogger)
	defer hub.Close()

	var (
		verifier    *auth.JWTVerifier
		dispatcher  service.Dispatcher
		inProcess   *service.InProcessDispatcher
		mqConn      *amqp091.Connection
		taskPub     *messaging.RabbitMQPublisher
		mqCtx       context.Context
		mqCancel    context.CancelFunc
		consumerErr = make(chan error, 1)
	)
	if cfg.Auth.JWTSecret != "" {
		if verifier, err = auth.NewJWTVerifier(cfg.Auth.JWTSecret, appLogger); err != nil {
			appLogger.Fatal("Failed to create JWT verifier", zap.Error(err))
		}
	} else {
		appLogger.Warn("JWT_SECRET is not set, remote story store is unreachable")
	}

	illustrator := service.NewIllustrator(imageClient, pollRegistry, stores, hub, cfg.Image.PromptTemplate, appLogger)
	mqCtx, mqCancel = context.WithCancel(context.Background())
	defer mqCancel()

	switch cfg.IllustrationMode {
	case config.IllustrationModeQueue:
		mqConn, err = messaging.Dial(mqCtx, cfg.RabbitMQ.URL, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer mqConn.Close()

		taskPub, err = messaging.NewRabbitMQPublisher(mqConn, cfg.RabbitMQ.TaskQueueName, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to create task publisher", zap.Error(err))
		}
		defer taskPub.Close()
		dispatcher = service.NewQueueDispatcher(taskPub, appLogger)

		consumer := messaging.NewConsumer(mqConn, cfg.RabbitMQ.NotificationQueueName,
			cfg.RabbitMQ.ConsumerName+"_notifications", ws.NewNotificationHandler(hub, appLogger), appLogger)
		go func() {
			consumerErr <- consumer.Run(mqCtx)
		}()
	default:
		inProcess = service.NewInProcessDispatcher(illustrator, appLogger)
		dispatcher = inProcess
	}

	storyService := service.NewStoryService(writer, dispatcher, stores, hub, appLogger)

	// --- HTTP ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.AppEnv == "development" {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(handler.ZapLoggingMiddleware(appLogger))
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.Server)))

	p := ginprometheus.NewPrometheus("gin")
	opts := handler.Options{
		WebSocket:       ws.NewHandler(hub, verifierOrNil(verifier), cfg.Server.GetAllowedOrigins(), appLogger).ServeWS,
		DownloadTimeout: cfg.Server.DownloadTimeout,
	}
	if verifier != nil {
		opts.Verifier = verifier
	}
	handler.NewHandler(storyService, illustrator, opts, appLogger).RegisterRoutes(router)
	p.Use(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// WriteTimeout не задан: потоковая генерация и ожидание задачи длятся дольше.
	}
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", zap.String("signal", sig.String()))
	case err := <-consumerErr:
		appLogger.Error("Notification consumer stopped, shutting down", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	mqCancel()
	if inProcess != nil {
		if err := inProcess.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Illustration jobs did not finish before shutdown deadline", zap.Error(err))
		}
	}
	appLogger.Info("Server exiting")
}

func corsConfig(cfg config.ServerConfig) cors.Config {
	corsCfg := cors.DefaultConfig()
	if origins := cfg.GetAllowedOrigins(); len(origins) > 0 {
		corsCfg.AllowOrigins = origins
	} else {
		corsCfg.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Client-ID"}
	corsCfg.ExposeHeaders = []string{"X-Story-ID", "Content-Disposition"}
	corsCfg.AllowCredentials = true
	corsCfg.MaxAge = 12 * time.Hour
	return corsCfg
}

// verifierOrNil не дает nil-указателю превратиться в ненулевой интерфейс.
func verifierOrNil(v *auth.JWTVerifier) ws.TokenVerifier {
	if v == nil {
		return nil
	}
	return v
}
