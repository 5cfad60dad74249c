package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shcorya/distributed-workers/internal/broker"
	"github.com/shcorya/distributed-workers/internal/domain"
	"github.com/shcorya/distributed-workers/internal/metrics"
	"github.com/shcorya/distributed-workers/internal/repository"
)

const defaultLookupTimeout = 5 * time.Second

// GetJobUsecase answers status queries. A job still held by the broker is
// reported with its broker stats; otherwise its stored result is returned.
type GetJobUsecase struct {
	broker  broker.Broker
	repo    repository.ResultRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewGetJobUsecase creates a new GetJobUsecase. Each backend lookup is
// bounded by timeout.
func NewGetJobUsecase(b broker.Broker, repo repository.ResultRepository, timeout time.Duration, logger *zap.Logger) *GetJobUsecase {
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return &GetJobUsecase{
		broker:  b,
		repo:    repo,
		timeout: timeout,
		logger:  logger,
	}
}

// Execute looks the job up in the broker first and falls through to the
// result store when the broker no longer knows it.
func (uc *GetJobUsecase) Execute(ctx context.Context, id domain.JobID) (*domain.JobStatus, error) {
	stats, err := uc.statsOf(ctx, id)
	switch {
	case err == nil:
		metrics.QueriesTotal.WithLabelValues(metrics.SourceBroker).Inc()
		return &domain.JobStatus{Stats: stats}, nil
	case !errors.Is(err, domain.ErrJobNotFound):
		metrics.QueriesTotal.WithLabelValues(metrics.SourceError).Inc()
		uc.logger.Error("Failed to read job stats", zap.Uint64("job_id", uint64(id)), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}

	result, err := uc.getResult(ctx, id)
	switch {
	case err == nil:
		metrics.QueriesTotal.WithLabelValues(metrics.SourceStore).Inc()
		return &domain.JobStatus{Result: result}, nil
	case errors.Is(err, domain.ErrJobNotFound):
		metrics.QueriesTotal.WithLabelValues(metrics.SourceNotFound).Inc()
		uc.logger.Debug("Job not found", zap.Uint64("job_id", uint64(id)))
		return nil, domain.ErrJobNotFound
	default:
		metrics.QueriesTotal.WithLabelValues(metrics.SourceError).Inc()
		uc.logger.Error("Failed to read job result", zap.Uint64("job_id", uint64(id)), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}
}

func (uc *GetJobUsecase) statsOf(ctx context.Context, id domain.JobID) (*domain.JobStats, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()
	return uc.broker.StatsOf(ctx, id)
}

func (uc *GetJobUsecase) getResult(ctx context.Context, id domain.JobID) (*domain.JobResult, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()
	return uc.repo.GetByID(ctx, id)
}
