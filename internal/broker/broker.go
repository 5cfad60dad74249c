// Package broker defines the contract of the at-least-once work queue that
// sits between the ingestion service and the workers.
package broker

import (
	"context"

	"github.com/shcorya/distributed-workers/internal/domain"
)

// Broker is a work queue with time-limited reservations.
// Implementations must be safe for concurrent use.
type Broker interface {
	// Enqueue appends a new job and returns its id. Identical payloads
	// produce distinct jobs.
	Enqueue(ctx context.Context, payload []byte) (domain.JobID, error)

	// Reserve blocks until a job is available or ctx ends. A reserved job
	// is invisible to other reservers until it is deleted, released,
	// buried, or its reservation expires.
	Reserve(ctx context.Context) (*domain.Job, error)

	// Delete removes a job permanently, whoever holds it. Returns
	// domain.ErrJobNotFound if the id is unknown or already deleted.
	Delete(ctx context.Context, id domain.JobID) error

	// Release returns a reserved job to the front of the ready queue.
	// Returns domain.ErrJobNotFound unless job's reservation is still the
	// current one.
	Release(ctx context.Context, job *domain.Job) error

	// Bury parks a reserved job; it stays visible to StatsOf but is never
	// reserved again. Same reservation check as Release.
	Bury(ctx context.Context, job *domain.Job) error

	// StatsOf describes a job still tracked by the broker, or returns
	// domain.ErrJobNotFound.
	StatsOf(ctx context.Context, id domain.JobID) (*domain.JobStats, error)

	Ping(ctx context.Context) error
	Close() error
}
