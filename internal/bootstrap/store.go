package bootstrap

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/shcorya/distributed-workers/internal/config"
	"github.com/shcorya/distributed-workers/internal/repository"
	mongorepo "github.com/shcorya/distributed-workers/internal/repository/mongo"
	"github.com/shcorya/distributed-workers/internal/repository/postgres"
)

const storeConnectTimeout = 10 * time.Second

// OpenResultStore connects to the result store named by cfg.URL. The URL
// scheme selects the backend: mongodb:// or mongodb+srv:// for MongoDB,
// postgres:// or postgresql:// for PostgreSQL.
func OpenResultStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (repository.ResultRepository, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: parse store url: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
	defer cancel()

	switch u.Scheme {
	case "mongodb", "mongodb+srv":
		return openMongo(ctx, cfg, logger)
	case "postgres", "postgresql":
		return openPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("bootstrap: unsupported store scheme %q", u.Scheme)
	}
}

func openMongo(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (repository.ResultRepository, error) {
	client, err := mongod.Connect(options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("bootstrap: ping mongo: %w", err)
	}

	repo := mongorepo.NewResultRepository(client, cfg.Database, cfg.Collection, logger)
	if err := repo.EnsureIndexes(ctx, cfg.ResultTTL); err != nil {
		_ = repo.Close()
		return nil, err
	}

	logger.Info("Connected to MongoDB result store",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection),
	)
	return repo, nil
}

func openPostgres(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (repository.ResultRepository, error) {
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}

	repo := postgres.NewPostgresResultRepository(pool, cfg.Collection)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = repo.Close()
		return nil, err
	}
	if cfg.ResultTTL > 0 {
		logger.Warn("STORE_RESULT_TTL is only enforced by MongoDB; PostgreSQL results are kept indefinitely")
	}

	logger.Info("Connected to PostgreSQL result store", zap.String("table", cfg.Collection))
	return repo, nil
}
