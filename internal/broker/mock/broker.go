package mock

import (
	"context"
	"sync"
	"time"

	"github.com/shcorya/distributed-workers/internal/broker"
	"github.com/shcorya/distributed-workers/internal/domain"
)

// Ensure Broker implements broker.Broker.
var _ broker.Broker = (*Broker)(nil)

type entry struct {
	job   *domain.Job
	stats domain.JobStats
}

// Broker is an in-memory broker for tests. Reservations never expire on
// their own; call Expire to simulate a time-to-run timeout.
type Broker struct {
	mu      sync.Mutex
	nextID  domain.JobID
	jobs    map[domain.JobID]*entry
	ready   []domain.JobID
	arrived chan struct{}

	// Hook functions for injecting errors. A hook returning a nil error
	// falls through to the in-memory behavior.
	EnqueueFn func(ctx context.Context, payload []byte) error
	ReserveFn func(ctx context.Context) error
	DeleteFn  func(ctx context.Context, id domain.JobID) error
	StatsOfFn func(ctx context.Context, id domain.JobID) error
	ReleaseFn func(ctx context.Context, job *domain.Job) error
	BuryFn    func(ctx context.Context, job *domain.Job) error
	PingFn    func(ctx context.Context) error

	// Recorded calls for assertions.
	Deleted  []domain.JobID
	Released []domain.JobID
	Buried   []domain.JobID
}

// NewBroker creates an empty in-memory broker.
func NewBroker() *Broker {
	return &Broker{
		jobs:    make(map[domain.JobID]*entry),
		arrived: make(chan struct{}),
	}
}

// signal wakes every blocked reserver. Callers hold mu.
func (m *Broker) signal() {
	close(m.arrived)
	m.arrived = make(chan struct{})
}

func (m *Broker) Enqueue(ctx context.Context, payload []byte) (domain.JobID, error) {
	if m.EnqueueFn != nil {
		if err := m.EnqueueFn(ctx, payload); err != nil {
			return 0, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	now := time.Now().UTC()
	m.jobs[id] = &entry{
		job: &domain.Job{ID: id, Payload: append([]byte(nil), payload...), SubmittedAt: now},
		stats: domain.JobStats{
			ID:          id,
			State:       domain.StateReady,
			TTR:         60,
			SubmittedAt: now,
		},
	}
	m.ready = append(m.ready, id)
	m.signal()
	return id, nil
}

func (m *Broker) Reserve(ctx context.Context) (*domain.Job, error) {
	if m.ReserveFn != nil {
		if err := m.ReserveFn(ctx); err != nil {
			return nil, err
		}
	}
	for {
		m.mu.Lock()
		if len(m.ready) > 0 {
			id := m.ready[0]
			m.ready = m.ready[1:]
			e := m.jobs[id]
			e.stats.State = domain.StateReserved
			e.stats.Reserves++
			e.stats.TimeLeft = e.stats.TTR
			job := *e.job
			job.Reservation = e.stats.Reserves
			m.mu.Unlock()
			return &job, nil
		}
		wait := m.arrived
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

func (m *Broker) Delete(ctx context.Context, id domain.JobID) error {
	if m.DeleteFn != nil {
		if err := m.DeleteFn(ctx, id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Deleted = append(m.Deleted, id)
	if _, ok := m.jobs[id]; !ok {
		return domain.ErrJobNotFound
	}
	delete(m.jobs, id)
	m.removeReady(id)
	return nil
}

func (m *Broker) Release(ctx context.Context, job *domain.Job) error {
	if m.ReleaseFn != nil {
		if err := m.ReleaseFn(ctx, job); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := job.ID
	m.Released = append(m.Released, id)
	e, ok := m.held(job)
	if !ok {
		return domain.ErrJobNotFound
	}
	e.stats.State = domain.StateReady
	e.stats.TimeLeft = 0
	e.stats.Releases++
	m.ready = append([]domain.JobID{id}, m.ready...)
	m.signal()
	return nil
}

func (m *Broker) Bury(ctx context.Context, job *domain.Job) error {
	if m.BuryFn != nil {
		if err := m.BuryFn(ctx, job); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Buried = append(m.Buried, job.ID)
	e, ok := m.held(job)
	if !ok {
		return domain.ErrJobNotFound
	}
	e.stats.State = domain.StateBuried
	e.stats.TimeLeft = 0
	e.stats.Buries++
	return nil
}

func (m *Broker) StatsOf(ctx context.Context, id domain.JobID) (*domain.JobStats, error) {
	if m.StatsOfFn != nil {
		if err := m.StatsOfFn(ctx, id); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	stats := e.stats
	return &stats, nil
}

func (m *Broker) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn(ctx)
	}
	return nil
}

func (m *Broker) Close() error {
	return nil
}

// Expire simulates the reservation of id timing out: the job goes back to
// the front of the ready queue. It reports whether the job was reserved.
func (m *Broker) Expire(id domain.JobID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[id]
	if !ok || e.stats.State != domain.StateReserved {
		return false
	}
	e.stats.State = domain.StateReady
	e.stats.TimeLeft = 0
	e.stats.Timeouts++
	m.ready = append([]domain.JobID{id}, m.ready...)
	m.signal()
	return true
}

// Len returns the number of jobs the broker still tracks, in any state.
func (m *Broker) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// State returns the current state of id, or "" if the broker does not track it.
func (m *Broker) State(id domain.JobID) domain.JobState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.jobs[id]; ok {
		return e.stats.State
	}
	return ""
}

// held returns the entry of job if job's reservation is the current one.
// Callers hold mu.
func (m *Broker) held(job *domain.Job) (*entry, bool) {
	e, ok := m.jobs[job.ID]
	if !ok || e.stats.State != domain.StateReserved || e.stats.Reserves != job.Reservation {
		return nil, false
	}
	return e, true
}

func (m *Broker) removeReady(id domain.JobID) {
	for i, r := range m.ready {
		if r == id {
			m.ready = append(m.ready[:i], m.ready[i+1:]...)
			return
		}
	}
}
