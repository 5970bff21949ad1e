package core

import "time"

// CircuitStatus is the gate state of one upstream dependency.
type CircuitStatus string

const (
	CircuitClosed   CircuitStatus = "closed"
	CircuitOpen     CircuitStatus = "open"
	CircuitHalfOpen CircuitStatus = "half_open"
)

// CircuitState is a snapshot of a breaker. One breaker exists per upstream
// dependency and is shared by every caller of that dependency.
type CircuitState struct {
	Status               CircuitStatus `json:"status"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	OpenedAt             time.Time     `json:"opened_at,omitempty"`
}
