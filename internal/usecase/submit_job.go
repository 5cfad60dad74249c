package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/shcorya/distributed-workers/internal/broker"
	"github.com/shcorya/distributed-workers/internal/domain"
	"github.com/shcorya/distributed-workers/internal/metrics"
)

// SubmitJobUsecase accepts job payloads and hands them to the broker.
type SubmitJobUsecase struct {
	broker broker.Broker
	logger *zap.Logger
}

// NewSubmitJobUsecase creates a new SubmitJobUsecase.
func NewSubmitJobUsecase(b broker.Broker, logger *zap.Logger) *SubmitJobUsecase {
	return &SubmitJobUsecase{
		broker: b,
		logger: logger,
	}
}

// Execute validates the payload, enqueues it and returns the broker-assigned id.
// Payloads that are not a single well-formed JSON value are never enqueued.
func (uc *SubmitJobUsecase) Execute(ctx context.Context, payload []byte) (domain.JobID, error) {
	if len(bytes.TrimSpace(payload)) == 0 || !json.Valid(payload) {
		metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		return 0, domain.ErrInvalidPayload
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		return 0, fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
	}

	id, err := uc.broker.Enqueue(ctx, compact.Bytes())
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		uc.logger.Error("Failed to enqueue job", zap.Error(err), zap.Int("payload_size", compact.Len()))
		return 0, fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}

	metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()
	uc.logger.Info("Job submitted successfully", zap.Uint64("job_id", uint64(id)))
	return id, nil
}
