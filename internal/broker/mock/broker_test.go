package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shcorya/distributed-workers/internal/domain"
)

func TestBroker_DeleteIsIdempotent(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()

	id, _ := b.Enqueue(ctx, []byte(`{}`))
	if err := b.Delete(ctx, id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Delete(ctx, id); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound on second delete, got %v", err)
	}
}

func TestBroker_ExpireRedelivers(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()

	id, _ := b.Enqueue(ctx, []byte(`{}`))
	if _, err := b.Reserve(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.Expire(id) {
		t.Fatal("expected reserved job to expire")
	}

	job, err := b.Reserve(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID != id {
		t.Errorf("expected job %d, got %d", id, job.ID)
	}
	stats, _ := b.StatsOf(ctx, id)
	if stats.Reserves != 2 || stats.Timeouts != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestBroker_ReserveWakesOnEnqueue(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan domain.JobID, 1)
	go func() {
		job, err := b.Reserve(ctx)
		if err == nil {
			done <- job.ID
		}
	}()

	time.Sleep(10 * time.Millisecond)
	id, _ := b.Enqueue(context.Background(), []byte(`{}`))

	select {
	case got := <-done:
		if got != id {
			t.Errorf("expected job %d, got %d", id, got)
		}
	case <-ctx.Done():
		t.Fatal("reserve did not wake up")
	}
}

func TestBroker_StaleReleaseIsRejected(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()

	id, _ := b.Enqueue(ctx, []byte(`{}`))
	stale, _ := b.Reserve(ctx)
	b.Expire(id)
	current, err := b.Reserve(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := b.Release(ctx, stale); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound for a stale reservation, got %v", err)
	}
	if state := b.State(id); state != domain.StateReserved {
		t.Errorf("expected job to stay reserved, got %q", state)
	}
	if err := b.Bury(ctx, current); err != nil {
		t.Errorf("unexpected error burying with the current reservation: %v", err)
	}
}
