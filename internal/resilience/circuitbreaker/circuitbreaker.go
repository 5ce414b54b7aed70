// Package circuitbreaker guards calls to independently-failing external
// services. It wraps github.com/sony/gobreaker configured for consecutive-
// failure tripping: the circuit opens after a configured number of
// consecutive failures, stays open for a cooldown period, then permits
// exactly one trial call in half-open state.
package circuitbreaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"compintel/internal/domain/entity"
)

// ErrOpen is returned when a call is short-circuited because the breaker
// is open. No network attempt is made.
var ErrOpen = errors.New("circuit breaker open")

// Config holds the configuration for one service's breaker.
type Config struct {
	// Name is the service name for logging and health reporting.
	Name string

	// FailureThreshold is the number of consecutive failures that trips
	// the circuit from closed to open.
	FailureThreshold uint32

	// Cooldown is how long the circuit stays open before permitting the
	// single half-open trial call.
	Cooldown time.Duration
}

// DefaultConfig returns the default breaker configuration: 5 consecutive
// failures, 60 second cooldown.
func DefaultConfig(name string) Config {
	return Config{Name: name, FailureThreshold: 5, Cooldown: 60 * time.Second}
}

// CircuitBreaker wraps gobreaker with consecutive-failure semantics and a
// health snapshot for observability.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	cfg     Config

	mu          sync.Mutex
	consecutive int
	lastFailure time.Time
	openUntil   time.Time
}

// New creates a breaker for the given configuration.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}

	cb := &CircuitBreaker{cfg: cfg}

	settings := gobreaker.Settings{
		Name: cfg.Name,
		// Exactly one trial call in half-open state.
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			cb.onStateChange(to)
			slog.Warn("circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}
	cb.breaker = gobreaker.NewCircuitBreaker(settings)
	return cb
}

func (cb *CircuitBreaker) onStateChange(to gobreaker.State) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch to {
	case gobreaker.StateOpen:
		cb.openUntil = time.Now().Add(cb.cfg.Cooldown)
	case gobreaker.StateClosed:
		cb.consecutive = 0
		cb.openUntil = time.Time{}
	}
}

// Execute runs fn through the breaker. When the circuit is open the call
// short-circuits with ErrOpen without invoking fn.
func (cb *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := cb.breaker.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrOpen
		}
		cb.recordFailure()
		return nil, err
	}
	cb.recordSuccess()
	return result, nil
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutive++
	cb.lastFailure = time.Now()
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutive = 0
}

// Name returns the service name.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// State returns the current breaker state.
func (cb *CircuitBreaker) State() entity.CircuitState {
	switch cb.breaker.State() {
	case gobreaker.StateOpen:
		return entity.CircuitOpen
	case gobreaker.StateHalfOpen:
		return entity.CircuitHalfOpen
	default:
		return entity.CircuitClosed
	}
}

// IsOpen reports whether calls would currently short-circuit.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.breaker.State() == gobreaker.StateOpen
}

// Health returns a snapshot of the breaker for observability.
func (cb *CircuitBreaker) Health() entity.ServiceHealth {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return entity.ServiceHealth{
		Service:             cb.cfg.Name,
		State:               cb.stateLocked(),
		ConsecutiveFailures: cb.consecutive,
		LastFailureAt:       cb.lastFailure,
		OpenUntil:           cb.openUntil,
	}
}

// stateLocked avoids re-entering cb.mu via State while it is held.
func (cb *CircuitBreaker) stateLocked() entity.CircuitState {
	switch cb.breaker.State() {
	case gobreaker.StateOpen:
		return entity.CircuitOpen
	case gobreaker.StateHalfOpen:
		return entity.CircuitHalfOpen
	default:
		return entity.CircuitClosed
	}
}

// Registry hands out one breaker per service name. It is owned by the
// orchestrator so tests and parallel runs can use isolated instances.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	configs  map[string]Config
}

// NewRegistry creates a registry with optional per-service configurations.
func NewRegistry(configs map[string]Config) *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		configs:  configs,
	}
}

// Breaker returns the breaker for the service, creating it on first use.
func (r *Registry) Breaker(service string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[service]; ok {
		return cb
	}
	cfg, ok := r.configs[service]
	if !ok {
		cfg = DefaultConfig(service)
	}
	cfg.Name = service
	cb := New(cfg)
	r.breakers[service] = cb
	return cb
}

// Health returns snapshots for every breaker created so far.
func (r *Registry) Health() []entity.ServiceHealth {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]entity.ServiceHealth, 0, len(r.breakers))
	for _, cb := range r.breakers {
		out = append(out, cb.Health())
	}
	return out
}
