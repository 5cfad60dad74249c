// Package postgres stores job results as JSONB rows in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shcorya/distributed-workers/internal/domain"
	"github.com/shcorya/distributed-workers/internal/repository"
)

// Ensure ResultRepo implements repository.ResultRepository.
var _ repository.ResultRepository = (*ResultRepo)(nil)

// ResultRepo is a PostgreSQL-backed result repository.
type ResultRepo struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresResultRepository creates a PostgreSQL-backed result repository
// over the named table. The repository takes ownership of pool.
func NewPostgresResultRepository(pool *pgxpool.Pool, table string) *ResultRepo {
	return &ResultRepo{pool: pool, table: quoteTable(table)}
}

func quoteTable(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// EnsureSchema creates the results table if it does not exist.
func (r *ResultRepo) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ` + r.table + ` (
			id           BIGINT PRIMARY KEY,
			outcome      TEXT NOT NULL,
			payload      JSONB NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL
		)`
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

func (r *ResultRepo) Put(ctx context.Context, result *domain.JobResult) error {
	query := `
		INSERT INTO ` + r.table + ` (id, outcome, payload, completed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET outcome = EXCLUDED.outcome, payload = EXCLUDED.payload, completed_at = EXCLUDED.completed_at`

	_, err := r.pool.Exec(ctx, query,
		int64(result.ID), result.Outcome, []byte(result.Payload), result.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: put result: %w: %w", putErrorKind(err), err)
	}
	return nil
}

// Payload bytes JSONB refuses to hold: NUL escapes, invalid encoding and
// values it cannot parse. Retrying them cannot succeed.
var payloadErrorCodes = map[string]bool{
	"22P02": true, // invalid_text_representation
	"22P05": true, // untranslatable_character
	"22021": true, // character_not_in_repertoire
}

func putErrorKind(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && payloadErrorCodes[pgErr.Code] {
		return domain.ErrPayloadRejected
	}
	return domain.ErrStoreUnavailable
}

func (r *ResultRepo) GetByID(ctx context.Context, id domain.JobID) (*domain.JobResult, error) {
	query := `SELECT id, outcome, payload, completed_at FROM ` + r.table + ` WHERE id = $1`

	var (
		rowID   int64
		payload []byte
		result  domain.JobResult
	)
	err := r.pool.QueryRow(ctx, query, int64(id)).Scan(&rowID, &result.Outcome, &payload, &result.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("postgres: get result: %w: %w", domain.ErrStoreUnavailable, err)
	}
	result.ID = domain.JobID(rowID)
	result.Payload = payload
	result.CompletedAt = result.CompletedAt.UTC()
	return &result, nil
}

func (r *ResultRepo) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *ResultRepo) Close() error {
	r.pool.Close()
	return nil
}
