package mock

import (
	"context"
	"sync"

	"github.com/shcorya/distributed-workers/internal/domain"
	"github.com/shcorya/distributed-workers/internal/events"
)

// Ensure MockPublisher implements events.Publisher.
var _ events.Publisher = (*MockPublisher)(nil)

// MockPublisher is a mock event publisher for testing.
type MockPublisher struct {
	mu        sync.Mutex
	Published []*domain.CompletionEvent
	PublishFn func(ctx context.Context, event *domain.CompletionEvent) error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishCompleted(ctx context.Context, event *domain.CompletionEvent) error {
	if m.PublishFn != nil {
		return m.PublishFn(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, event)
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

// Events returns a copy of the published events.
func (m *MockPublisher) Events() []*domain.CompletionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.CompletionEvent(nil), m.Published...)
}
