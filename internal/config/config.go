package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort               = "8080"
	defaultRateLimitMax       = 100
	defaultRateLimitWindow    = 3600
	defaultTemperature        = 0.05
	defaultMaxTokens          = 800
	defaultModelTimeoutMs     = 30000
	defaultFailureThreshold   = 5
	defaultSuccessThreshold   = 2
	defaultBreakerTimeoutMs   = 30000
	defaultBreakerKeyPrefix   = "circuit_breaker:"
	defaultCacheCapacity      = 100
	defaultCacheTTLSeconds    = 86400
	defaultSemanticCapacity   = 1000
	defaultSemanticThreshold  = 0.95
	minSafeSemanticThreshold  = 0.90
	defaultEmbeddingMaxChars  = 500
	defaultEmbeddingTimeoutMs = 10000
	defaultTelemetryWorkers   = 2
	defaultTelemetryBuffer    = 256
	defaultMaintenanceCron    = "@every 1h"
)

// Config represents the complete application configuration
type Config struct {
	Server         models.ServerConfig         `yaml:"server"`
	RateLimit      models.RateLimitConfig      `yaml:"rate_limit"`
	Redis          *models.RedisConfig         `yaml:"redis,omitempty"`
	Database       *models.DatabaseConfig      `yaml:"database,omitempty"`
	Models         models.ModelsConfig         `yaml:"models"`
	CircuitBreaker models.CircuitBreakerConfig `yaml:"circuit_breaker"`
	Cache          models.CacheConfig          `yaml:"cache"`
	Embedding      *models.EmbeddingConfig     `yaml:"embedding,omitempty"`
	Telemetry      models.TelemetryConfig      `yaml:"telemetry"`
	Maintenance    models.MaintenanceConfig    `yaml:"maintenance"`
}

// LoadFromFile loads configuration from a YAML file with environment variable substitution
func LoadFromFile(configPath string) (*Config, error) {
	cleanPath := filepath.Clean(configPath)

	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid config path: path traversal not allowed")
	}

	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("invalid config file: only .yaml and .yml files are allowed")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML bytes after environment substitution and applies defaults.
func Parse(data []byte) (*Config, error) {
	content := substituteEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.normalizeModelKeys()
	config.ApplyDefaults()
	return &config, nil
}

// LoadEnvFiles loads environment variables from .env files in order of precedence
// Loads files in the order provided (first has highest priority)
func LoadEnvFiles(envFiles []string) {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err == nil {
				fmt.Printf("Loaded environment variables from %s\n", envFile)
			}
		}
	}
}

// New creates a new Config instance by loading from the specified config file path
func New(configPath string) (*Config, error) {
	return LoadFromFile(configPath)
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::(-[^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns with environment variables
func substituteEnvVars(content string) string {
	return envPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""
		if len(submatches) > 2 && submatches[2] != "" {
			defaultValue = strings.TrimPrefix(submatches[2], "-")
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// normalizeModelKeys upper-cases model keys so lookups are case-insensitive.
func (c *Config) normalizeModelKeys() {
	if c.Models.Definitions != nil {
		normalized := make(map[string]models.ProviderConfig, len(c.Models.Definitions))
		for key, value := range c.Models.Definitions {
			normalized[NormalizeModelKey(key)] = value
		}
		c.Models.Definitions = normalized
	}
	for i, key := range c.Models.Chain {
		c.Models.Chain[i] = NormalizeModelKey(key)
	}
}

// NormalizeModelKey is the canonical form of a model key.
func NormalizeModelKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// ApplyDefaults fills every unset tunable with its production default.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = defaultPort
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.RateLimit.Max <= 0 {
		c.RateLimit.Max = defaultRateLimitMax
	}
	if c.RateLimit.WindowSeconds <= 0 {
		c.RateLimit.WindowSeconds = defaultRateLimitWindow
	}

	if c.Models.Temperature <= 0 {
		c.Models.Temperature = defaultTemperature
	}
	if c.Models.MaxTokens <= 0 {
		c.Models.MaxTokens = defaultMaxTokens
	}
	if c.Models.TimeoutMs <= 0 {
		c.Models.TimeoutMs = defaultModelTimeoutMs
	}

	cb := &c.CircuitBreaker
	if cb.Backend == "" {
		cb.Backend = models.CircuitBackendMemory
	}
	if cb.FailureThreshold <= 0 {
		cb.FailureThreshold = defaultFailureThreshold
	}
	if cb.SuccessThreshold <= 0 {
		cb.SuccessThreshold = defaultSuccessThreshold
	}
	if cb.TimeoutMs <= 0 {
		cb.TimeoutMs = defaultBreakerTimeoutMs
	}
	if cb.KeyPrefix == "" {
		cb.KeyPrefix = defaultBreakerKeyPrefix
	}

	exact := &c.Cache.Exact
	if exact.Capacity <= 0 {
		exact.Capacity = defaultCacheCapacity
	}
	if exact.TTLSeconds <= 0 {
		exact.TTLSeconds = defaultCacheTTLSeconds
	}
	if exact.Durable == "" {
		if c.Database != nil {
			exact.Durable = models.CacheBackendDatabase
		} else {
			exact.Durable = models.CacheBackendNone
		}
	}

	sem := &c.Cache.Semantic
	if sem.Backend == "" {
		sem.Backend = models.SemanticBackendVector
	}
	if sem.Index == "" {
		sem.Index = models.CacheBackendMemory
	}
	if sem.Capacity <= 0 {
		sem.Capacity = defaultSemanticCapacity
	}
	if sem.TTLSeconds <= 0 {
		sem.TTLSeconds = defaultCacheTTLSeconds
	}
	if sem.SemanticThreshold == 0 {
		sem.SemanticThreshold = defaultSemanticThreshold
	}

	if c.Embedding != nil {
		if c.Embedding.MaxInputChars <= 0 {
			c.Embedding.MaxInputChars = defaultEmbeddingMaxChars
		}
		if c.Embedding.TimeoutMs <= 0 {
			c.Embedding.TimeoutMs = defaultEmbeddingTimeoutMs
		}
	}

	if c.Telemetry.Workers <= 0 {
		c.Telemetry.Workers = defaultTelemetryWorkers
	}
	if c.Telemetry.BufferSize <= 0 {
		c.Telemetry.BufferSize = defaultTelemetryBuffer
	}
	if c.Maintenance.Schedule == "" {
		c.Maintenance.Schedule = defaultMaintenanceCron
	}
}

// ModelKeys lists every defined model key, chain order first.
func (c *Config) ModelKeys() []string {
	seen := make(map[string]bool, len(c.Models.Definitions))
	keys := make([]string, 0, len(c.Models.Definitions))
	for _, key := range c.Models.Chain {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	for key := range c.Models.Definitions {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}

// BreakerTimeout is how long a breaker stays open before a trial request.
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.CircuitBreaker.TimeoutMs) * time.Millisecond
}

// ExactTTL is the exact cache lifetime.
func (c *Config) ExactTTL() time.Duration {
	return time.Duration(c.Cache.Exact.TTLSeconds) * time.Second
}

// RateLimitWindow is the limiter expiration window.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

// RedisURL returns the configured Redis URL or empty.
func (c *Config) RedisURL() string {
	if c.Redis == nil {
		return ""
	}
	return c.Redis.URL
}

// GetNormalizedLogLevel returns the log level in lowercase for consistent comparison
func (c *Config) GetNormalizedLogLevel() string {
	return strings.ToLower(c.Server.LogLevel)
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Validate checks if all required configuration values are set
func (c *Config) Validate() error {
	var missing []string

	if c.Server.Port == "" {
		missing = append(missing, "server.port")
	}
	if c.Server.AllowedOrigins == "" {
		missing = append(missing, "server.allowed_origins")
	}
	if len(c.Models.Chain) == 0 {
		missing = append(missing, "models.chain")
	}
	for _, key := range c.Models.Chain {
		def, ok := c.Models.Definitions[key]
		if !ok {
			missing = append(missing, "models.definitions."+key)
			continue
		}
		if def.Provider == "" {
			missing = append(missing, "models.definitions."+key+".provider")
		}
		if def.ModelID == "" {
			missing = append(missing, "models.definitions."+key+".model_id")
		}
	}

	needsRedis := c.CircuitBreaker.Backend == models.CircuitBackendRedis ||
		c.Cache.Exact.Durable == models.CacheBackendRedis ||
		(c.Cache.Semantic.Enabled && c.Cache.Semantic.Index == models.CacheBackendRedis)
	if needsRedis && c.RedisURL() == "" {
		missing = append(missing, "redis.url")
	}
	if c.Cache.Exact.Durable == models.CacheBackendDatabase && c.Database == nil {
		missing = append(missing, "database")
	}
	if c.Telemetry.Enabled && c.Database == nil {
		missing = append(missing, "database")
	}
	if c.Cache.Semantic.Enabled && c.Embedding == nil {
		missing = append(missing, "embedding")
	}

	if len(missing) > 0 {
		return &ValidationError{MissingFields: missing}
	}

	return c.validateSemanticThreshold()
}

// validateSemanticThreshold treats the similarity threshold as a safety parameter:
// a false-positive match returns another patient's diagnosis.
func (c *Config) validateSemanticThreshold() error {
	sem := c.Cache.Semantic
	if !sem.Enabled {
		return nil
	}
	if sem.SemanticThreshold <= 0 || sem.SemanticThreshold > 1 {
		return fmt.Errorf("invalid semantic threshold %.2f; must be in (0.0, 1.0]", sem.SemanticThreshold)
	}
	if sem.SemanticThreshold < minSafeSemanticThreshold {
		if !sem.AllowLowThreshold {
			return fmt.Errorf("semantic threshold %.2f is below %.2f; set cache.semantic.allow_low_threshold to accept it",
				sem.SemanticThreshold, minSafeSemanticThreshold)
		}
		fiberlog.Warnf("Semantic cache threshold %.2f is below the safe minimum %.2f", sem.SemanticThreshold, minSafeSemanticThreshold)
	}
	return nil
}

// ValidationError represents configuration validation errors
type ValidationError struct {
	MissingFields []string
}

func (e *ValidationError) Error() string {
	return "missing required configuration fields: " + strings.Join(e.MissingFields, ", ")
}
