package bootstrap

import (
	"go.uber.org/zap"

	"github.com/shcorya/distributed-workers/internal/config"
	"github.com/shcorya/distributed-workers/internal/events"
)

// NewEventPublisher returns the completion event publisher, or a no-op
// publisher when no AMQP URL is configured.
func NewEventPublisher(cfg config.EventsConfig, logger *zap.Logger) (events.Publisher, error) {
	if !cfg.Enabled() {
		logger.Info("Completion events disabled")
		return events.NopPublisher{}, nil
	}
	return events.NewRabbitMQPublisher(cfg.AMQPURL, cfg.Exchange, logger)
}
