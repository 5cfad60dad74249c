// Package events publishes job lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/shcorya/distributed-workers/internal/domain"
)

const (
	exchangeType        = "topic"
	RoutingKeyCompleted = "job.completed"

	// Reconnection settings
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 30 * time.Second

	// Publish timeout
	publishTimeout = 5 * time.Second
)

// Publisher publishes completion events.
type Publisher interface {
	PublishCompleted(ctx context.Context, event *domain.CompletionEvent) error
	Close() error
}

// NopPublisher discards every event. It is used when no AMQP URL is configured.
type NopPublisher struct{}

func (NopPublisher) PublishCompleted(context.Context, *domain.CompletionEvent) error { return nil }
func (NopPublisher) Close() error                                                  { return nil }

type rabbitPublisher struct {
	url      string
	exchange string
	logger   *zap.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	confirm chan amqp.Confirmation
	closed  bool

	// publishMu serializes publishes so each confirmation matches its message.
	publishMu sync.Mutex
}

// NewRabbitMQPublisher connects to RabbitMQ and declares the events exchange.
func NewRabbitMQPublisher(url, exchange string, logger *zap.Logger) (Publisher, error) {
	p := &rabbitPublisher{
		url:      url,
		exchange: exchange,
		logger:   logger,
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	// Watch for connection closures and reconnect
	go p.watchConnection()

	return p, nil
}

func (p *rabbitPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, confirm, err := p.openChannel(conn)
	if err != nil {
		conn.Close()
		return err
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = ch
	p.confirm = confirm
	p.mu.Unlock()

	p.logger.Info("RabbitMQ event publisher initialized", zap.String("exchange", p.exchange))
	return nil
}

// openChannel opens a confirm-mode channel on conn and declares the events
// exchange. The returned chan receives one confirmation per publish.
func (p *rabbitPublisher) openChannel(conn *amqp.Connection) (*amqp.Channel, chan amqp.Confirmation, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq: channel: %w", err)
	}

	steps := []struct {
		op  string
		run func() error
	}{
		{"enable confirms", func() error { return ch.Confirm(false) }},
		{"declare exchange", func() error {
			return ch.ExchangeDeclare(p.exchange, exchangeType, true, false, false, false, nil)
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			ch.Close()
			return nil, nil, fmt.Errorf("rabbitmq: %s: %w", step.op, err)
		}
	}

	return ch, ch.NotifyPublish(make(chan amqp.Confirmation, 1)), nil
}

func (p *rabbitPublisher) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// watchConnection waits for the current connection to drop and replaces it.
func (p *rabbitPublisher) watchConnection() {
	for !p.isClosed() {
		p.mu.RLock()
		conn := p.conn
		p.mu.RUnlock()

		reason, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
		if !ok {
			return
		}

		p.logger.Warn("RabbitMQ connection lost", zap.String("reason", reason.Error()))

		p.mu.Lock()
		p.channel = nil
		p.mu.Unlock()

		if !p.reconnect() {
			return
		}
	}
}

// reconnect dials until it succeeds or the publisher is closed. Events
// published in the meantime fail fast.
func (p *rabbitPublisher) reconnect() bool {
	delay := reconnectDelay
	for attempt := 1; ; attempt++ {
		time.Sleep(delay)
		if p.isClosed() {
			return false
		}

		err := p.connect()
		if err == nil {
			p.logger.Info("RabbitMQ publisher reconnected", zap.Int("attempt", attempt))
			return true
		}

		delay = min(delay*2, maxReconnectDelay)
		p.logger.Warn("RabbitMQ reconnect failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
	}
}

func (p *rabbitPublisher) PublishCompleted(ctx context.Context, event *domain.CompletionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event: %w", err)
	}

	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	p.mu.RLock()
	ch, confirm := p.channel, p.confirm
	p.mu.RUnlock()

	if ch == nil {
		return fmt.Errorf("rabbitmq: channel not available (reconnecting)")
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(publishCtx,
		p.exchange,
		RoutingKeyCompleted,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.JobID.String(),
			Timestamp:    event.CompletedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}

	// Wait for broker confirmation
	select {
	case ack, ok := <-confirm:
		if !ok {
			return fmt.Errorf("rabbitmq: channel closed before confirmation (job_id=%s)", event.JobID)
		}
		if !ack.Ack {
			return fmt.Errorf("rabbitmq: broker nacked event (job_id=%s)", event.JobID)
		}
	case <-publishCtx.Done():
		return fmt.Errorf("rabbitmq: publish confirmation timeout (job_id=%s)", event.JobID)
	}

	p.logger.Debug("Published completion event",
		zap.Uint64("job_id", uint64(event.JobID)),
		zap.Int("body_size", len(body)),
	)
	return nil
}

func (p *rabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
