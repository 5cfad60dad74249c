package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shcorya/distributed-workers/internal/broker"
	"github.com/shcorya/distributed-workers/internal/domain"
	"github.com/shcorya/distributed-workers/internal/metrics"
	"github.com/shcorya/distributed-workers/internal/usecase"
)

const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
)

// WorkerPool runs a fixed number of worker loops. Each loop reserves one
// job at a time from the broker and hands it to the process use case.
type WorkerPool struct {
	size      int
	broker    broker.Broker
	processUC *usecase.ProcessJobUsecase
	logger    *zap.Logger
	wg        sync.WaitGroup

	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// Option configures a WorkerPool.
type Option func(*WorkerPool)

// WithReserveBackoff sets the delay after a failed reserve. It doubles on
// each consecutive failure up to limit.
func WithReserveBackoff(initial, limit time.Duration) Option {
	return func(p *WorkerPool) {
		p.initialBackoff = initial
		p.maxBackoff = limit
	}
}

// NewWorkerPool creates a new fixed-size worker pool.
func NewWorkerPool(size int, b broker.Broker, processUC *usecase.ProcessJobUsecase, logger *zap.Logger, opts ...Option) *WorkerPool {
	p := &WorkerPool{
		size:           max(size, 1),
		broker:         b,
		processUC:      processUC,
		logger:         logger,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches all worker goroutines. Cancel ctx and call Stop to wait
// for them to finish.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("Starting worker pool", zap.Int("pool_size", p.size))

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop waits for all workers to finish their current jobs and exit.
func (p *WorkerPool) Stop() {
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

// Run starts the pool and blocks until ctx is cancelled and every worker
// has exited.
func (p *WorkerPool) Run(ctx context.Context) error {
	p.Start(ctx)
	<-ctx.Done()
	p.Stop()
	return nil
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("Worker started", zap.Int("worker_id", id))

	backoff := p.initialBackoff
	for {
		job, err := p.broker.Reserve(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Debug("Worker shutting down", zap.Int("worker_id", id))
				return
			}
			metrics.ReserveErrors.Inc()
			p.logger.Warn("Reserve failed, backing off",
				zap.Int("worker_id", id),
				zap.Duration("retry_in", backoff),
				zap.Error(err),
			)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, p.maxBackoff)
			continue
		}
		backoff = p.initialBackoff

		p.handle(ctx, id, job)
	}
}

// handle runs one job. A panic is logged and the job left reserved, so the
// broker redelivers it once the reservation expires.
func (p *WorkerPool) handle(ctx context.Context, id int, job *domain.Job) {
	metrics.WorkersActive.Inc()
	defer metrics.WorkersActive.Dec()
	defer func() {
		if r := recover(); r != nil {
			metrics.JobsProcessedTotal.WithLabelValues(metrics.ResultError).Inc()
			p.logger.Error("Worker panic recovered",
				zap.Int("worker_id", id),
				zap.Uint64("job_id", uint64(job.ID)),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	p.logger.Debug("Worker processing job",
		zap.Int("worker_id", id),
		zap.Uint64("job_id", uint64(job.ID)),
	)

	if err := p.processUC.Execute(ctx, job); err != nil {
		p.logger.Warn("Job not completed",
			zap.Int("worker_id", id),
			zap.Uint64("job_id", uint64(job.ID)),
			zap.Error(err),
		)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
