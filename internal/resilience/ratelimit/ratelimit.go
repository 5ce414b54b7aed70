// Package ratelimit provides per-service token-bucket throttling for
// outbound calls, built on golang.org/x/time/rate. Each service name owns
// one bucket; buckets start full and refill continuously at the configured
// rate, capped at capacity.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"compintel/internal/resilience/faults"
)

// ErrLimitExceeded is returned when an acquire cannot be satisfied within
// the configured wait timeout. It classifies as Transient.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Config describes one service's bucket.
type Config struct {
	// Capacity is the bucket size: the maximum burst of tokens.
	Capacity int

	// RefillPerSecond is the continuous token refill rate.
	RefillPerSecond float64

	// WaitTimeout bounds how long an acquire may block waiting for
	// tokens before failing with ErrLimitExceeded.
	WaitTimeout time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.RefillPerSecond <= 0 {
		return fmt.Errorf("refill rate must be positive, got %v", c.RefillPerSecond)
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("wait timeout must be positive, got %v", c.WaitTimeout)
	}
	return nil
}

// DefaultConfig is a conservative bucket for services without explicit
// configuration: 5 tokens, 1 token/s refill, 30s wait.
func DefaultConfig() Config {
	return Config{Capacity: 5, RefillPerSecond: 1.0, WaitTimeout: 30 * time.Second}
}

// Bucket is a single token bucket, safe for concurrent callers.
type Bucket struct {
	service     string
	limiter     *rate.Limiter
	waitTimeout time.Duration
}

// NewBucket creates a full bucket for the named service.
func NewBucket(service string, cfg Config) *Bucket {
	return &Bucket{
		service:     service,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RefillPerSecond), cfg.Capacity),
		waitTimeout: cfg.WaitTimeout,
	}
}

// Acquire takes n tokens from the bucket, blocking until they accrue, the
// wait timeout elapses, or ctx is done. A timed-out wait returns a
// Transient-classified ErrLimitExceeded; parent context cancellation is
// returned as-is.
func (b *Bucket) Acquire(ctx context.Context, n int) error {
	waitCtx, cancel := context.WithTimeout(ctx, b.waitTimeout)
	defer cancel()

	if err := b.limiter.WaitN(waitCtx, n); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return faults.Transient(b.service, fmt.Errorf("%w: %v", ErrLimitExceeded, err))
	}
	return nil
}

// TryAcquire takes n tokens without blocking.
func (b *Bucket) TryAcquire(n int) bool {
	return b.limiter.AllowN(time.Now(), n)
}

// Registry hands out one bucket per service name. Buckets are created
// lazily from the per-service configuration, falling back to the default.
// The registry is owned by the orchestrator; no process-wide singleton.
type Registry struct {
	mu       sync.Mutex
	buckets  map[string]*Bucket
	configs  map[string]Config
	fallback Config
}

// NewRegistry creates a registry with per-service configurations.
func NewRegistry(configs map[string]Config) *Registry {
	return &Registry{
		buckets:  make(map[string]*Bucket),
		configs:  configs,
		fallback: DefaultConfig(),
	}
}

// Bucket returns the bucket for the service, creating it on first use.
func (r *Registry) Bucket(service string) *Bucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.buckets[service]; ok {
		return b
	}
	cfg, ok := r.configs[service]
	if !ok {
		cfg = r.fallback
	}
	b := NewBucket(service, cfg)
	r.buckets[service] = b
	return b
}

// Acquire takes one token from the named service's bucket.
func (r *Registry) Acquire(ctx context.Context, service string) error {
	return r.Bucket(service).Acquire(ctx, 1)
}
