// Package mongo stores job results in MongoDB, one document per job keyed
// by the job id.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/shcorya/distributed-workers/internal/domain"
	"github.com/shcorya/distributed-workers/internal/repository"
)

// Ensure ResultRepo implements repository.ResultRepository.
var _ repository.ResultRepository = (*ResultRepo)(nil)

const disconnectTimeout = 5 * time.Second

// resultModel holds the payload either as a native value or, when it has
// no faithful BSON form, as the submitted bytes in payload_raw.
type resultModel struct {
	ID          int64         `bson:"_id"`
	Outcome     string        `bson:"outcome"`
	Payload     bson.RawValue `bson:"payload,omitempty"`
	PayloadRaw  []byte        `bson:"payload_raw,omitempty"`
	CompletedAt time.Time     `bson:"completed_at"`
}

// ResultRepo is a MongoDB-backed result repository.
type ResultRepo struct {
	client *mongod.Client
	coll   *mongod.Collection
	logger *zap.Logger
}

// NewResultRepository creates a repository over database.collection. The
// repository takes ownership of client and disconnects it on Close.
func NewResultRepository(client *mongod.Client, database, collection string, logger *zap.Logger) *ResultRepo {
	return &ResultRepo{
		client: client,
		coll:   client.Database(database).Collection(collection),
		logger: logger,
	}
}

// EnsureIndexes creates the retention index. A ttl of zero keeps results
// indefinitely and creates nothing.
func (r *ResultRepo) EnsureIndexes(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	model := mongod.IndexModel{
		Keys:    bson.D{{Key: "completed_at", Value: 1}},
		Options: options.Index().SetName("completed_at_ttl").SetExpireAfterSeconds(int32(ttl / time.Second)),
	}
	if _, err := r.coll.Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("mongo: ensure indexes: %w", err)
	}
	r.logger.Info("Result retention index ensured", zap.Duration("ttl", ttl))
	return nil
}

// Put upserts the result document.
func (r *ResultRepo) Put(ctx context.Context, result *domain.JobResult) error {
	m, err := toResultModel(result)
	if err != nil {
		return fmt.Errorf("mongo: put result: %w", err)
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"_id": m.ID}, m, opts); err != nil {
		return fmt.Errorf("mongo: put result: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// GetByID loads a result document.
func (r *ResultRepo) GetByID(ctx context.Context, id domain.JobID) (*domain.JobResult, error) {
	var m resultModel
	err := r.coll.FindOne(ctx, bson.M{"_id": int64(id)}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("mongo: get result: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return fromResultModel(&m)
}

// Ping checks the connection to the primary.
func (r *ResultRepo) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo: ping: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Close disconnects the client.
func (r *ResultRepo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

func toResultModel(r *domain.JobResult) (*resultModel, error) {
	native, raw, err := encodePayload(r.Payload)
	if err != nil {
		return nil, err
	}
	return &resultModel{
		ID:          int64(r.ID),
		Outcome:     r.Outcome,
		Payload:     native,
		PayloadRaw:  raw,
		CompletedAt: r.CompletedAt.UTC(),
	}, nil
}

func fromResultModel(m *resultModel) (*domain.JobResult, error) {
	payload, err := decodePayload(m.Payload, m.PayloadRaw)
	if err != nil {
		return nil, fmt.Errorf("mongo: decode result %d: %w", m.ID, err)
	}
	return &domain.JobResult{
		ID:          domain.JobID(m.ID),
		Outcome:     m.Outcome,
		Payload:     payload,
		CompletedAt: m.CompletedAt.UTC(),
	}, nil
}
