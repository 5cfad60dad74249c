package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shcorya/distributed-workers/internal/broker"
	"github.com/shcorya/distributed-workers/internal/domain"
	"github.com/shcorya/distributed-workers/internal/events"
	"github.com/shcorya/distributed-workers/internal/metrics"
	"github.com/shcorya/distributed-workers/internal/processor"
	"github.com/shcorya/distributed-workers/internal/repository"
)

const defaultFinishTimeout = 10 * time.Second

// ProcessJobUsecase runs one reserved job through processing, persistence
// and acknowledgement.
type ProcessJobUsecase struct {
	broker    broker.Broker
	repo      repository.ResultRepository
	processor processor.Processor
	publisher events.Publisher
	timeout   time.Duration
	logger    *zap.Logger
}

// NewProcessJobUsecase creates a new ProcessJobUsecase. Steps that follow
// a successful Process each get timeout, independent of ctx cancellation.
func NewProcessJobUsecase(
	b broker.Broker,
	repo repository.ResultRepository,
	proc processor.Processor,
	pub events.Publisher,
	timeout time.Duration,
	logger *zap.Logger,
) *ProcessJobUsecase {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if timeout <= 0 {
		timeout = defaultFinishTimeout
	}
	return &ProcessJobUsecase{
		broker:    b,
		repo:      repo,
		processor: proc,
		publisher: pub,
		timeout:   timeout,
		logger:    logger,
	}
}

// Execute processes job: process → store result → delete from broker →
// publish completion event.
//
// The job is deleted only after its result is stored. If storing fails the
// reservation is left to expire so the broker redelivers the job.
func (uc *ProcessJobUsecase) Execute(ctx context.Context, job *domain.Job) error {
	jobID := zap.Uint64("job_id", uint64(job.ID))

	// Step 1: Process
	start := time.Now()
	outcome, err := uc.processor.Process(ctx, job.Payload)
	elapsed := time.Since(start)
	metrics.ProcessingDuration.Observe(elapsed.Seconds())
	if err != nil {
		return uc.abandon(ctx, job, err)
	}

	// Step 2: Store result
	result := &domain.JobResult{
		ID:          job.ID,
		Outcome:     outcome,
		Payload:     job.Payload,
		CompletedAt: time.Now().UTC(),
	}
	putCtx, cancel := uc.detached(ctx)
	err = uc.repo.Put(putCtx, result)
	cancel()
	if errors.Is(err, domain.ErrPayloadRejected) {
		// The store cannot hold this payload.
		return uc.abandon(ctx, job, err)
	}
	if err != nil {
		metrics.JobsProcessedTotal.WithLabelValues(metrics.ResultStoreError).Inc()
		uc.logger.Error("Failed to store result, leaving job for redelivery", jobID, zap.Error(err))
		return fmt.Errorf("store result: %w", err)
	}

	// Step 3: Acknowledge
	delCtx, cancel := uc.detached(ctx)
	err = uc.broker.Delete(delCtx, job.ID)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrJobNotFound):
		// The reservation expired and another worker finished the job first.
		metrics.ReservationRaces.Inc()
		uc.logger.Warn("Job already gone when acknowledging", jobID)
	default:
		metrics.JobsProcessedTotal.WithLabelValues(metrics.ResultError).Inc()
		uc.logger.Error("Failed to delete job after storing result", jobID, zap.Error(err))
		return fmt.Errorf("delete job: %w", err)
	}

	metrics.JobsProcessedTotal.WithLabelValues(metrics.ResultCompleted).Inc()
	uc.logger.Info("Job completed",
		jobID,
		zap.String("outcome", outcome),
		zap.Duration("processing_time", elapsed),
	)

	// Step 4: Notify (best effort)
	pubCtx, cancel := uc.detached(ctx)
	defer cancel()
	event := &domain.CompletionEvent{
		JobID:       job.ID,
		Outcome:     outcome,
		CompletedAt: result.CompletedAt,
		DurationMs:  elapsed.Milliseconds(),
	}
	if err := uc.publisher.PublishCompleted(pubCtx, event); err != nil {
		uc.logger.Warn("Failed to publish completion event", jobID, zap.Error(err))
	}
	return nil
}

// abandon hands a job that could not be processed back to the broker:
// rejected payloads are buried, anything else is released for another try.
func (uc *ProcessJobUsecase) abandon(ctx context.Context, job *domain.Job, cause error) error {
	jobID := zap.Uint64("job_id", uint64(job.ID))
	opCtx, cancel := uc.detached(ctx)
	defer cancel()

	if errors.Is(cause, domain.ErrPayloadRejected) {
		metrics.JobsProcessedTotal.WithLabelValues(metrics.ResultBuried).Inc()
		uc.logger.Warn("Payload rejected, burying job", jobID, zap.Error(cause))
		if err := uc.broker.Bury(opCtx, job); err != nil {
			uc.logBrokerFailure("bury", jobID, err)
		}
		return fmt.Errorf("process job: %w", cause)
	}

	metrics.JobsProcessedTotal.WithLabelValues(metrics.ResultReleased).Inc()
	if ctx.Err() != nil {
		uc.logger.Info("Processing interrupted, releasing job", jobID)
	} else {
		uc.logger.Error("Processing failed, releasing job", jobID, zap.Error(cause))
	}
	if err := uc.broker.Release(opCtx, job); err != nil {
		uc.logBrokerFailure("release", jobID, err)
	}
	return fmt.Errorf("process job: %w", cause)
}

// logBrokerFailure reports a failed bury or release. ErrJobNotFound means the
// reservation expired and the job now belongs to another worker.
func (uc *ProcessJobUsecase) logBrokerFailure(op string, jobID zap.Field, err error) {
	if errors.Is(err, domain.ErrJobNotFound) {
		metrics.ReservationRaces.Inc()
		uc.logger.Warn("Reservation lost before "+op, jobID)
		return
	}
	uc.logger.Error("Failed to "+op+" job", jobID, zap.Error(err))
}

func (uc *ProcessJobUsecase) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), uc.timeout)
}
