package entity

import "time"

// CircuitState mirrors the breaker state machine for health reporting.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// ServiceHealth is a point-in-time snapshot of one external dependency's
// circuit breaker. Held in memory only; continuity across process restarts
// is not required.
type ServiceHealth struct {
	Service             string       `json:"service"`
	State               CircuitState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastFailureAt       time.Time    `json:"last_failure_at,omitzero"`
	OpenUntil           time.Time    `json:"open_until,omitzero"`
}
