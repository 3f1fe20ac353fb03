package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tsclabs/salon-voice-ai/internal/api/router"
	"github.com/tsclabs/salon-voice-ai/internal/app/bootstrap"
	appconfig "github.com/tsclabs/salon-voice-ai/internal/config"
	"github.com/tsclabs/salon-voice-ai/internal/http/handlers"
	"github.com/tsclabs/salon-voice-ai/internal/observability/metrics"
	"github.com/tsclabs/salon-voice-ai/pkg/logging"
)

func main() {
	// Local runs pick up .env; deployed environments set real env vars.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting salon voice agent",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	// Assemble dependencies
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	gateway := bootstrap.BuildGateway(cfg, logger)
	sender := bootstrap.BuildEmailSender(ctx, cfg, logger)

	registry := prometheus.NewRegistry()
	agentMetrics := metrics.NewAgentMetrics(registry)

	factory, transcript := bootstrap.BuildSessionFactory(ctx, cfg, gateway, sender, redisClient, agentMetrics, logger)
	sessionsHandler := handlers.NewSessionsHandler(factory, transcript, logger)

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		Sessions:           sessionsHandler,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
