package models

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           string `json:"port,omitzero" yaml:"port"`
	AllowedOrigins string `json:"allowed_origins,omitzero" yaml:"allowed_origins"`
	Environment    string `json:"environment,omitzero" yaml:"environment"`
	LogLevel       string `json:"log_level,omitzero" yaml:"log_level"`
}

// RateLimitConfig bounds requests per client identity on the diagnosis route.
type RateLimitConfig struct {
	Enabled       *bool `json:"enabled,omitzero" yaml:"enabled,omitempty"`
	Max           int   `json:"max,omitzero" yaml:"max,omitempty"`
	WindowSeconds int   `json:"window_seconds,omitzero" yaml:"window_seconds,omitempty"`
}

// IsEnabled defaults to true when unset.
func (r RateLimitConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// RedisConfig is the shared Redis connection used by breaker, cache and vector index.
type RedisConfig struct {
	URL      string `json:"url,omitzero" yaml:"url"`
	PoolSize int    `json:"pool_size,omitzero" yaml:"pool_size,omitempty"`
}

// TelemetryConfig controls diagnosis event recording.
type TelemetryConfig struct {
	Enabled    bool `json:"enabled,omitzero" yaml:"enabled"`
	Workers    int  `json:"workers,omitzero" yaml:"workers,omitempty"`
	BufferSize int  `json:"buffer_size,omitzero" yaml:"buffer_size,omitempty"`
}

// MaintenanceConfig schedules background cache sweeps.
type MaintenanceConfig struct {
	Enabled  bool   `json:"enabled,omitzero" yaml:"enabled"`
	Schedule string `json:"schedule,omitzero" yaml:"schedule,omitempty"` // cron spec, e.g. "@every 1h"
}
