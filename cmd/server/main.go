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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shcorya/distributed-workers/internal/bootstrap"
	"github.com/shcorya/distributed-workers/internal/config"
	handler "github.com/shcorya/distributed-workers/internal/delivery/http"
	"github.com/shcorya/distributed-workers/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := bootstrap.NewLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting ingestion server", cfg.Fields()...)

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to the broker
	b, err := bootstrap.ConnectBroker(ctx, cfg.Broker, logger)
	if err != nil {
		logger.Fatal("Failed to connect to broker", zap.Error(err))
	}
	defer b.Close()

	// Connect to the result store
	repo, err := bootstrap.OpenResultStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal("Failed to open result store", zap.Error(err))
	}
	defer repo.Close()

	// Initialize use cases
	submitUC := usecase.NewSubmitJobUsecase(b, logger)
	getJobUC := usecase.NewGetJobUsecase(b, repo, cfg.Broker.OpTimeout, logger)

	// Initialize router
	router := handler.NewRouter(&handler.RouterDeps{
		SubmitUC:        submitUC,
		GetJobUC:        getJobUC,
		Logger:          logger,
		RateLimitPerMin: cfg.Server.RateLimit,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		HealthChecks: map[string]handler.Pinger{
			"broker": b,
			"store":  repo,
		},
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logger.Error("Server failed", zap.Error(err))
	}

	logger.Info("Shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("API server stopped")
}
