package models

import (
	"fmt"
	"time"
)

// CircuitState is the breaker position for one model key.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON and YAML.
func (s CircuitState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *CircuitState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "CLOSED":
		*s = CircuitClosed
	case "OPEN":
		*s = CircuitOpen
	case "HALF_OPEN":
		*s = CircuitHalfOpen
	default:
		return fmt.Errorf("unknown circuit state %q", string(b))
	}
	return nil
}

// CircuitStatus is the per-model breaker record.
type CircuitStatus struct {
	State           CircuitState `json:"state"`
	FailureCount    int          `json:"failureCount"`
	SuccessCount    int          `json:"successCount"`
	LastFailureTime *time.Time   `json:"lastFailureTime,omitempty"`
	LastSuccessTime *time.Time   `json:"lastSuccessTime,omitempty"`
	TotalRequests   int64        `json:"totalRequests"`
	TotalFailures   int64        `json:"totalFailures"`
}

// Healthy reports whether the model would currently be tried.
func (s CircuitStatus) Healthy() bool {
	return s.State == CircuitClosed || s.State == CircuitHalfOpen
}

// ModelCircuitReport is the per-model row of the circuit-status endpoint.
type ModelCircuitReport struct {
	Model   string            `json:"model"`
	State   string            `json:"state"`
	Healthy bool              `json:"healthy"`
	Stats   CircuitStatsBlock `json:"stats"`
}

// CircuitStatsBlock carries the human-facing counters.
type CircuitStatsBlock struct {
	TotalRequests        int64  `json:"totalRequests"`
	TotalFailures        int64  `json:"totalFailures"`
	FailureRate          string `json:"failureRate"`
	LastFailure          string `json:"lastFailure,omitempty"`
	LastSuccess          string `json:"lastSuccess,omitempty"`
	TimeSinceLastFailure string `json:"timeSinceLastFailure,omitempty"`
}

// CircuitOverview summarises all breakers.
type CircuitOverview struct {
	Healthy int    `json:"healthy"`
	Total   int    `json:"total"`
	Status  string `json:"status"`
}
