// Package redis implements broker.Broker on top of Redis. Jobs are hashes,
// the ready queue is a list and reservations live in a sorted set scored by
// their deadline, which gives beanstalkd-style time-to-run semantics: a job
// whose reservation expires is handed to the next reserver.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shcorya/distributed-workers/internal/broker"
	"github.com/shcorya/distributed-workers/internal/domain"
)

var _ broker.Broker = (*Broker)(nil)

const (
	defaultKeyPrefix    = "dw:"
	defaultTTR          = 60 * time.Second
	defaultPollInterval = 250 * time.Millisecond
)

// Options configures the broker.
type Options struct {
	KeyPrefix    string
	TTR          time.Duration
	PollInterval time.Duration

	// Now overrides the clock; tests use it to expire reservations.
	Now func() time.Time
}

// Broker is a Redis-backed work queue.
type Broker struct {
	client *goredis.Client
	keys   keys
	ttr    time.Duration
	poll   time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// New creates a Redis-backed broker. The broker takes ownership of client
// and closes it on Close.
func New(client *goredis.Client, opts Options, logger *zap.Logger) *Broker {
	b := &Broker{
		client: client,
		keys:   keys{prefix: opts.KeyPrefix},
		ttr:    opts.TTR,
		poll:   opts.PollInterval,
		now:    opts.Now,
		logger: logger,
	}
	if b.keys.prefix == "" {
		b.keys.prefix = defaultKeyPrefix
	}
	if b.ttr <= 0 {
		b.ttr = defaultTTR
	}
	if b.poll <= 0 {
		b.poll = defaultPollInterval
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

func unavailable(op string, err error) error {
	return fmt.Errorf("redis broker: %s: %w: %w", op, domain.ErrBrokerUnavailable, err)
}

// Enqueue allocates the next id and appends the job to the ready list.
func (b *Broker) Enqueue(ctx context.Context, payload []byte) (domain.JobID, error) {
	n, err := b.client.Incr(ctx, b.keys.seq()).Result()
	if err != nil {
		return 0, unavailable("enqueue: allocate id", err)
	}
	id := domain.JobID(n)

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.keys.job(id),
		fieldPayload, string(payload),
		fieldState, string(domain.StateReady),
		fieldCreatedAt, strconv.FormatInt(b.now().UnixMilli(), 10),
		fieldTTR, strconv.FormatInt(b.ttr.Milliseconds(), 10),
		fieldReserves, 0,
		fieldTimeouts, 0,
		fieldReleases, 0,
		fieldBuries, 0,
	)
	pipe.RPush(ctx, b.keys.ready(), id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, unavailable("enqueue", err)
	}

	b.logger.Debug("Enqueued job", zap.Uint64("job_id", uint64(id)), zap.Int("payload_size", len(payload)))
	return id, nil
}

// Reserve polls for the oldest ready job until one is available or ctx ends.
func (b *Broker) Reserve(ctx context.Context) (*domain.Job, error) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		job, err := b.tryReserve(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if job != nil {
			return job, nil
		}
		timer.Reset(b.poll)
	}
}

func (b *Broker) tryReserve(ctx context.Context) (*domain.Job, error) {
	now := b.now()
	deadline := now.Add(b.ttr)

	res, err := reserveScript.Run(ctx, b.client,
		[]string{b.keys.ready(), b.keys.reserved()},
		b.keys.jobPrefix(),
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(deadline.UnixMilli(), 10),
	).StringSlice()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, unavailable("reserve", err)
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("redis broker: reserve: unexpected reply of length %d", len(res))
	}

	id, err := domain.ParseJobID(res[0])
	if err != nil {
		return nil, fmt.Errorf("redis broker: reserve: %w", err)
	}
	createdMs, _ := strconv.ParseInt(res[2], 10, 64)
	reservation, _ := strconv.Atoi(res[3])

	return &domain.Job{
		ID:          id,
		Payload:     []byte(res[1]),
		SubmittedAt: time.UnixMilli(createdMs).UTC(),
		Reservation: reservation,
	}, nil
}

// Delete removes the job from the ready list, the reservation set and its hash.
func (b *Broker) Delete(ctx context.Context, id domain.JobID) error {
	n, err := deleteScript.Run(ctx, b.client,
		[]string{b.keys.ready(), b.keys.reserved(), b.keys.job(id)},
		id.String(),
	).Int()
	if err != nil {
		return unavailable("delete", err)
	}
	if n == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// Release puts a reserved job back at the head of the ready list. A
// reservation that expired and was handed to another worker is left alone.
func (b *Broker) Release(ctx context.Context, job *domain.Job) error {
	n, err := releaseScript.Run(ctx, b.client,
		[]string{b.keys.ready(), b.keys.reserved(), b.keys.job(job.ID)},
		job.ID.String(), strconv.Itoa(job.Reservation),
	).Int()
	if err != nil {
		return unavailable("release", err)
	}
	if n == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// Bury parks a reserved job held under job's reservation.
func (b *Broker) Bury(ctx context.Context, job *domain.Job) error {
	n, err := buryScript.Run(ctx, b.client,
		[]string{b.keys.reserved(), b.keys.job(job.ID)},
		job.ID.String(), strconv.Itoa(job.Reservation),
	).Int()
	if err != nil {
		return unavailable("bury", err)
	}
	if n == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// StatsOf reads the job hash.
func (b *Broker) StatsOf(ctx context.Context, id domain.JobID) (*domain.JobStats, error) {
	fields, err := b.client.HGetAll(ctx, b.keys.job(id)).Result()
	if err != nil {
		return nil, unavailable("stats", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrJobNotFound
	}

	state := domain.JobState(fields[fieldState])
	if !state.IsValid() {
		return nil, fmt.Errorf("redis broker: stats: job %s has unknown state %q", id, fields[fieldState])
	}

	now := b.now()
	created := time.UnixMilli(atoi64(fields[fieldCreatedAt]))
	stats := &domain.JobStats{
		ID:          id,
		State:       state,
		Age:         int64(now.Sub(created) / time.Second),
		TTR:         atoi64(fields[fieldTTR]) / 1000,
		Reserves:    int(atoi64(fields[fieldReserves])),
		Timeouts:    int(atoi64(fields[fieldTimeouts])),
		Releases:    int(atoi64(fields[fieldReleases])),
		Buries:      int(atoi64(fields[fieldBuries])),
		SubmittedAt: created.UTC(),
	}
	if stats.State == domain.StateReserved {
		left := time.UnixMilli(atoi64(fields[fieldDeadline])).Sub(now)
		if left > 0 {
			stats.TimeLeft = int64(left / time.Second)
		}
	}
	return stats, nil
}

// Ping checks the Redis connection.
func (b *Broker) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close closes the underlying client.
func (b *Broker) Close() error {
	return b.client.Close()
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
