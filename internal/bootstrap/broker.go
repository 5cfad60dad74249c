package bootstrap

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	redisbroker "github.com/shcorya/distributed-workers/internal/broker/redis"
	"github.com/shcorya/distributed-workers/internal/config"
)

// Startup retry delays for the broker connection.
var (
	brokerRetryDelay    = 500 * time.Millisecond
	brokerMaxRetryDelay = 10 * time.Second
)

// ConnectBroker dials Redis and returns the queue broker. The initial ping
// is retried with exponential backoff up to cfg.MaxReconnectAttempts
// times; the same limit bounds per-command retries afterwards.
func ConnectBroker(ctx context.Context, cfg config.BrokerConfig, logger *zap.Logger) (*redisbroker.Broker, error) {
	maxRetries := cfg.MaxReconnectAttempts
	if maxRetries == 0 {
		// go-redis treats 0 as its default; -1 disables retries.
		maxRetries = -1
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:       cfg.Addr(),
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: maxRetries,
	})

	delay := brokerRetryDelay
	for attempt := 0; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.OpTimeout)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			break
		}
		if attempt >= cfg.MaxReconnectAttempts {
			_ = client.Close()
			return nil, fmt.Errorf("bootstrap: connect broker at %s after %d attempts: %w", cfg.Addr(), attempt+1, err)
		}

		logger.Warn("Broker not reachable, retrying",
			zap.String("addr", cfg.Addr()),
			zap.Int("attempt", attempt+1),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, brokerMaxRetryDelay)
	}

	logger.Info("Connected to broker", zap.String("addr", cfg.Addr()), zap.Int("db", cfg.DB))

	return redisbroker.New(client, redisbroker.Options{
		KeyPrefix:    cfg.KeyPrefix,
		TTR:          cfg.TTR,
		PollInterval: cfg.PollInterval,
	}, logger), nil
}
