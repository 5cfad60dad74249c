package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shcorya/distributed-workers/internal/domain"
)

func TestHashProcessor_Digests(t *testing.T) {
	tests := []struct {
		algorithm string
		want      string
	}{
		// Digests of the compact payload `{"x":1}`.
		{AlgorithmMD5, "ac3ef48caa08fa3ed5e025da69edc645"},
		{AlgorithmSHA1, "8724fc2165f042facbd9194627e4748bb7571b27"},
		{AlgorithmSHA256, "5041bf1f713df204784353e82f6a4a535931cb64f1f4b4a5aeaffcb720918b22"},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			p, err := NewHashProcessor(tt.algorithm, 0, 0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := p.Process(context.Background(), []byte(`{"x":1}`))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestHashProcessor_IgnoresWhitespace(t *testing.T) {
	p, _ := NewHashProcessor(AlgorithmSHA256, 0, 0)
	ctx := context.Background()

	a, err := p.Process(ctx, []byte(`{"x":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := p.Process(ctx, []byte("{ \"x\" : 1 }\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("expected equal digests, got %s and %s", a, b)
	}
}

func TestHashProcessor_RejectsInvalidJSON(t *testing.T) {
	p, _ := NewHashProcessor(AlgorithmMD5, 0, 0)

	_, err := p.Process(context.Background(), []byte(`{"x":`))
	if !errors.Is(err, domain.ErrPayloadRejected) {
		t.Errorf("expected ErrPayloadRejected, got %v", err)
	}
}

func TestHashProcessor_DelayHonorsContext(t *testing.T) {
	p, _ := NewHashProcessor(AlgorithmMD5, time.Hour, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Process(ctx, []byte(`{}`))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestHashProcessor_DelayWithinRange(t *testing.T) {
	p, _ := NewHashProcessor(AlgorithmMD5, time.Second, 5*time.Second)

	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	for i := 0; i < 100; i++ {
		if _, err := p.Process(context.Background(), []byte(`{}`)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	for _, d := range slept {
		if d < time.Second || d > 5*time.Second {
			t.Fatalf("delay %s outside [1s, 5s]", d)
		}
	}
}

func TestNewHashProcessor_Invalid(t *testing.T) {
	if _, err := NewHashProcessor("crc32", 0, 0); err == nil {
		t.Error("expected error for unknown algorithm")
	}
	if _, err := NewHashProcessor(AlgorithmMD5, 2*time.Second, time.Second); err == nil {
		t.Error("expected error for inverted delay range")
	}
}
