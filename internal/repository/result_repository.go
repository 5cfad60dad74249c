package repository

import (
	"context"

	"github.com/shcorya/distributed-workers/internal/domain"
)

// ResultRepository persists the results of completed jobs.
// Implementations must be safe for concurrent use.
type ResultRepository interface {
	// Put stores the result of a completed job, replacing any earlier
	// result with the same id.
	Put(ctx context.Context, result *domain.JobResult) error

	// GetByID retrieves a result by job id. It returns
	// domain.ErrJobNotFound when no result exists.
	GetByID(ctx context.Context, id domain.JobID) (*domain.JobResult, error)

	// Ping checks connectivity to the store.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
