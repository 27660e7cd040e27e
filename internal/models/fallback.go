package models

// CircuitBackendType selects where breaker state lives.
type CircuitBackendType string

const (
	CircuitBackendMemory CircuitBackendType = "memory"
	CircuitBackendRedis  CircuitBackendType = "redis"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Backend          CircuitBackendType `json:"backend,omitzero" yaml:"backend,omitempty"`
	FailureThreshold int                `json:"failure_threshold,omitzero" yaml:"failure_threshold,omitempty"` // Number of failures before opening circuit
	SuccessThreshold int                `json:"success_threshold,omitzero" yaml:"success_threshold,omitempty"` // Number of half-open successes to close circuit
	TimeoutMs        int                `json:"timeout_ms,omitzero" yaml:"timeout_ms,omitempty"`               // Open duration before a trial request
	KeyPrefix        string             `json:"key_prefix,omitzero" yaml:"key_prefix,omitempty"`               // Redis key prefix
}
