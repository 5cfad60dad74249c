package mock

import (
	"context"
	"sync"

	"github.com/shcorya/distributed-workers/internal/domain"
	"github.com/shcorya/distributed-workers/internal/repository"
)

// Ensure MockResultRepository implements repository.ResultRepository.
var _ repository.ResultRepository = (*MockResultRepository)(nil)

// MockResultRepository is an in-memory mock of the result repository for testing.
type MockResultRepository struct {
	mu      sync.RWMutex
	results map[domain.JobID]*domain.JobResult
	puts    int

	// Hook functions for injecting errors. PutFunc runs before the write;
	// returning an error skips it.
	PutFunc     func(ctx context.Context, result *domain.JobResult) error
	GetByIDFunc func(ctx context.Context, id domain.JobID) (*domain.JobResult, error)
	PingFunc    func(ctx context.Context) error
}

// NewMockResultRepository creates a new mock repository.
func NewMockResultRepository() *MockResultRepository {
	return &MockResultRepository{
		results: make(map[domain.JobID]*domain.JobResult),
	}
}

func (m *MockResultRepository) Put(ctx context.Context, result *domain.JobResult) error {
	if m.PutFunc != nil {
		if err := m.PutFunc(ctx, result); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *result
	m.results[result.ID] = &stored
	m.puts++
	return nil
}

func (m *MockResultRepository) GetByID(ctx context.Context, id domain.JobID) (*domain.JobResult, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result, ok := m.results[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	out := *result
	return &out, nil
}

func (m *MockResultRepository) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

func (m *MockResultRepository) Close() error {
	return nil
}

// GetAll returns all stored results (for test assertions).
func (m *MockResultRepository) GetAll() []*domain.JobResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.JobResult, 0, len(m.results))
	for _, r := range m.results {
		out = append(out, r)
	}
	return out
}

// Puts returns the number of successful writes, counting overwrites.
func (m *MockResultRepository) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
