package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"huddle/internal/core/services"
	handlers "huddle/internal/handlers/http"
	"huddle/internal/infrastructure/middleware"
	"huddle/internal/infrastructure/monitoring"
	"huddle/internal/infrastructure/repositories"
	wsignal "huddle/internal/infrastructure/signal"
	"huddle/pkg/config"
	"huddle/pkg/logger"
	"huddle/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zlog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zlog.Sync()
	slog := zlog.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		slog.Fatalw("failed to initialize tracing", "error", err)
	}

	factory, err := repositories.NewRepositoryFactory(cfg, slog)
	if err != nil {
		slog.Fatalw("failed to initialize repositories", "error", err)
	}
	defer factory.Close()

	promRegistry := prometheus.NewRegistry()
	collector := monitoring.NewPrometheusCollector(promRegistry)

	hub := wsignal.NewHub(cfg.Signal.WriteTimeout, slog)

	registry := factory.CreateConnectionRegistry()
	sessionRepo := factory.CreateSessionRepository()
	locationRepo := factory.CreateLocationRepository()

	groupService := services.NewGroupService(registry, sessionRepo, hub, collector, slog)
	signalingService := services.NewSignalingService(registry, hub, collector, slog)
	locationService := services.NewLocationService(locationRepo, hub, collector, slog, cfg.Proximity.DefaultThreshold)

	wsServer := wsignal.NewServer(hub, registry, groupService, signalingService, locationService, collector, slog, wsignal.Options{
		PingInterval:        cfg.Signal.PingInterval,
		PongTimeout:         cfg.Signal.PongTimeout,
		WriteTimeout:        cfg.Signal.WriteTimeout,
		RateLimitEnabled:    cfg.RateLimiting.Enabled,
		MessagesPerSecond:   cfg.RateLimiting.WebSocket.MessagesPerSecond,
		Burst:               cfg.RateLimiting.WebSocket.Burst,
		MaxMessageSizeBytes: cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		JWTSecret:           cfg.Auth.JWTSecret,
		AllowedOrigins:      cfg.Auth.AllowedOrigins,
	})

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("repositories", factory.HealthCheck, 2*time.Second)

	var metricsHandler http.Handler
	if cfg.Monitoring.PrometheusEnabled {
		metricsHandler = promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(slog),
		middleware.TracingMiddleware(),
		middleware.NewHTTPRateLimitMiddleware(cfg),
		middleware.ErrorHandlerMiddleware(slog),
	)

	statusHandler := handlers.NewStatusHandler(hub, groupService, locationService, healthChecker, wsServer.HandleWebSocket, metricsHandler)
	statusHandler.SetupRoutes(router, middleware.AuthMiddleware(cfg.Auth.JWTSecret))

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Infow("server starting", "address", cfg.Server.Address, "redis", cfg.Redis.Enabled)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Warnw("server shutdown failed", "error", err)
	}
	if err := tp.Shutdown(ctx); err != nil {
		slog.Warnw("tracer shutdown failed", "error", err)
	}

	slog.Info("server stopped")
}
