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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shcorya/distributed-workers/internal/bootstrap"
	"github.com/shcorya/distributed-workers/internal/config"
	"github.com/shcorya/distributed-workers/internal/pool"
	"github.com/shcorya/distributed-workers/internal/processor"
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

	logger.Info("Starting worker", cfg.Fields()...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize processor
	proc, err := processor.NewHashProcessor(cfg.Worker.HashAlgorithm, cfg.Worker.MinDelay, cfg.Worker.MaxDelay)
	if err != nil {
		logger.Fatal("Invalid processor configuration", zap.Error(err))
	}

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

	// Initialize event publisher
	pub, err := bootstrap.NewEventPublisher(cfg.Events, logger)
	if err != nil {
		logger.Fatal("Failed to initialize event publisher", zap.Error(err))
	}
	defer pub.Close()

	// Initialize use case and pool
	processUC := usecase.NewProcessJobUsecase(b, repo, proc, pub, cfg.Broker.OpTimeout, logger)
	workerPool := pool.NewWorkerPool(cfg.Worker.Concurrency, b, processUC, logger)

	// Prometheus metrics server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return workerPool.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("Metrics server listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down worker...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker exited with error", zap.Error(err))
	}

	logger.Info("Worker stopped")
}
