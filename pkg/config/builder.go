// Package config provides the fluent configuration builder and the server
// bootstrap for the Sentra diagnosis proxy.
package config

import (
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/config"
	"github.com/sentra-ai/diagnosis-proxy/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Builder provides a fluent interface for building proxy configurations.
type Builder struct {
	cfg            *config.Config
	middlewares    []fiber.Handler
	requestTimeout time.Duration
}

// New creates a new configuration builder with minimal defaults.
func New() *Builder {
	return &Builder{
		cfg: &config.Config{
			Server: models.ServerConfig{
				Port:           "8080",
				AllowedOrigins: "*",
				Environment:    "development",
				LogLevel:       "info",
			},
			Models: models.ModelsConfig{
				Definitions: make(map[string]models.ProviderConfig),
			},
		},
	}
}

// Port sets the server port.
func (b *Builder) Port(port string) *Builder {
	b.cfg.Server.Port = port
	return b
}

// AllowedOrigins sets CORS allowed origins.
func (b *Builder) AllowedOrigins(origins string) *Builder {
	b.cfg.Server.AllowedOrigins = origins
	return b
}

// Environment sets the environment (development/production).
func (b *Builder) Environment(env string) *Builder {
	b.cfg.Server.Environment = env
	return b
}

// LogLevel sets the logging level (trace, debug, info, warn, error, fatal).
func (b *Builder) LogLevel(level string) *Builder {
	b.cfg.Server.LogLevel = level
	return b
}

// ProviderBuilder configures one model definition.
type ProviderBuilder struct {
	provider  models.ProviderType
	modelID   string
	apiKey    string
	baseURL   string
	name      string
	timeoutMs int
	jsonMode  *bool
	headers   map[string]string
}

// NewProviderBuilder starts a model definition served by provider.
func NewProviderBuilder(provider models.ProviderType, modelID, apiKey string) *ProviderBuilder {
	return &ProviderBuilder{
		provider: provider,
		modelID:  modelID,
		apiKey:   apiKey,
		headers:  make(map[string]string),
	}
}

// WithBaseURL sets a custom base URL for the provider.
func (pb *ProviderBuilder) WithBaseURL(url string) *ProviderBuilder {
	pb.baseURL = url
	return pb
}

// WithName sets the display name.
func (pb *ProviderBuilder) WithName(name string) *ProviderBuilder {
	pb.name = name
	return pb
}

// WithTimeout sets the per-call timeout in milliseconds.
func (pb *ProviderBuilder) WithTimeout(ms int) *ProviderBuilder {
	pb.timeoutMs = ms
	return pb
}

// WithJSONMode forces structured output on or off.
func (pb *ProviderBuilder) WithJSONMode(enabled bool) *ProviderBuilder {
	pb.jsonMode = &enabled
	return pb
}

// WithHeader adds a custom header.
func (pb *ProviderBuilder) WithHeader(key, value string) *ProviderBuilder {
	pb.headers[key] = value
	return pb
}

// Build builds the provider configuration.
func (pb *ProviderBuilder) Build() models.ProviderConfig {
	return models.ProviderConfig{
		Provider:  pb.provider,
		ModelID:   pb.modelID,
		Name:      pb.name,
		APIKey:    pb.apiKey,
		BaseURL:   pb.baseURL,
		TimeoutMs: pb.timeoutMs,
		JSONMode:  pb.jsonMode,
		Headers:   pb.headers,
	}
}

// AddModel defines a model key and appends it to the fallback chain.
func (b *Builder) AddModel(key string, cfg models.ProviderConfig) *Builder {
	key = config.NormalizeModelKey(key)
	b.cfg.Models.Definitions[key] = cfg
	b.cfg.Models.Chain = append(b.cfg.Models.Chain, key)
	return b
}

// DefineModel adds a model that callers may pin but that is not in the chain.
func (b *Builder) DefineModel(key string, cfg models.ProviderConfig) *Builder {
	b.cfg.Models.Definitions[config.NormalizeModelKey(key)] = cfg
	return b
}

// WithRedis sets the shared Redis connection.
func (b *Builder) WithRedis(url string) *Builder {
	b.cfg.Redis = &models.RedisConfig{URL: url}
	return b
}

// WithDatabase sets the relational store for the exact cache and telemetry.
func (b *Builder) WithDatabase(cfg models.DatabaseConfig) *Builder {
	b.cfg.Database = &cfg
	return b
}

// WithCircuitBreaker configures breaker thresholds.
func (b *Builder) WithCircuitBreaker(cfg models.CircuitBreakerConfig) *Builder {
	b.cfg.CircuitBreaker = cfg
	return b
}

// WithExactCache configures the exact cache.
func (b *Builder) WithExactCache(cfg models.ExactCacheConfig) *Builder {
	b.cfg.Cache.Exact = cfg
	return b
}

// WithSemanticCache enables the similarity cache with the given embedding model.
func (b *Builder) WithSemanticCache(cfg models.SemanticCacheConfig, emb models.EmbeddingConfig) *Builder {
	cfg.Enabled = true
	b.cfg.Cache.Semantic = cfg
	b.cfg.Embedding = &emb
	return b
}

// WithTelemetry records diagnosis events through a worker pool.
func (b *Builder) WithTelemetry(workers, bufferSize int) *Builder {
	b.cfg.Telemetry = models.TelemetryConfig{Enabled: true, Workers: workers, BufferSize: bufferSize}
	return b
}

// WithMaintenance schedules cache sweeps with a cron spec.
func (b *Builder) WithMaintenance(schedule string) *Builder {
	b.cfg.Maintenance = models.MaintenanceConfig{Enabled: true, Schedule: schedule}
	return b
}

// WithRateLimit bounds diagnosis requests per client.
func (b *Builder) WithRateLimit(max int, window time.Duration) *Builder {
	b.cfg.RateLimit.Max = max
	b.cfg.RateLimit.WindowSeconds = int(window / time.Second)
	return b
}

// WithTimeout sets the default request timeout.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.requestTimeout = timeout
	return b
}

// WithMiddleware adds a custom middleware.
func (b *Builder) WithMiddleware(middleware fiber.Handler) *Builder {
	b.middlewares = append(b.middlewares, middleware)
	return b
}

// Build returns the constructed configuration with defaults applied.
func (b *Builder) Build() *config.Config {
	b.cfg.ApplyDefaults()
	return b.cfg
}

// FromYAML creates a Builder from a YAML configuration file.
// The envFiles parameter specifies which .env files to load before parsing the YAML config.
// Files are loaded in order (first has highest priority).
func FromYAML(path string, envFiles []string) (*Builder, error) {
	if len(envFiles) > 0 {
		config.LoadEnvFiles(envFiles)
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	return &Builder{cfg: cfg}, nil
}
