// Package processor holds the work a worker performs on a job payload.
package processor

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"math/rand/v2"
	"time"

	"github.com/shcorya/distributed-workers/internal/domain"
)

// Processor turns a job payload into an outcome. Process must be
// deterministic in its outcome for a given payload, and must return
// domain.ErrPayloadRejected for payloads it can never handle.
type Processor interface {
	Process(ctx context.Context, payload []byte) (string, error)
}

// Supported hash algorithms.
const (
	AlgorithmMD5    = "md5"
	AlgorithmSHA1   = "sha1"
	AlgorithmSHA256 = "sha256"
)

// HashProcessor computes the hex digest of the compact JSON payload after
// a random delay standing in for real work.
type HashProcessor struct {
	newHash  func() hash.Hash
	minDelay time.Duration
	maxDelay time.Duration

	// sleep waits for d or until ctx ends. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewHashProcessor creates a processor for the named algorithm. The delay
// is drawn uniformly from [minDelay, maxDelay] for each job.
func NewHashProcessor(algorithm string, minDelay, maxDelay time.Duration) (*HashProcessor, error) {
	newHash, err := hashFunc(algorithm)
	if err != nil {
		return nil, err
	}
	if minDelay < 0 || maxDelay < minDelay {
		return nil, fmt.Errorf("processor: invalid delay range [%s, %s]", minDelay, maxDelay)
	}
	return &HashProcessor{
		newHash:  newHash,
		minDelay: minDelay,
		maxDelay: maxDelay,
		sleep:    sleepContext,
	}, nil
}

func hashFunc(algorithm string) (func() hash.Hash, error) {
	switch algorithm {
	case AlgorithmMD5:
		return md5.New, nil
	case AlgorithmSHA1:
		return sha1.New, nil
	case AlgorithmSHA256:
		return sha256.New, nil
	}
	return nil, fmt.Errorf("processor: unsupported hash algorithm %q", algorithm)
}

// Process waits for the simulated work delay, then hashes the payload.
func (p *HashProcessor) Process(ctx context.Context, payload []byte) (string, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrPayloadRejected, err)
	}

	if err := p.sleep(ctx, p.delay()); err != nil {
		return "", err
	}

	h := p.newHash()
	h.Write(compact.Bytes())
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (p *HashProcessor) delay() time.Duration {
	spread := p.maxDelay - p.minDelay
	if spread <= 0 {
		return p.minDelay
	}
	return p.minDelay + rand.N(spread+1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Func adapts an ordinary function to the Processor interface.
type Func func(ctx context.Context, payload []byte) (string, error)

// Process calls f(ctx, payload).
func (f Func) Process(ctx context.Context, payload []byte) (string, error) {
	return f(ctx, payload)
}
