package models

// CacheBackendType represents the type of cache backend to use
type CacheBackendType string

const (
	CacheBackendRedis    CacheBackendType = "redis"
	CacheBackendMemory   CacheBackendType = "memory"
	CacheBackendDatabase CacheBackendType = "database"
	CacheBackendNone     CacheBackendType = "none"
)

// SemanticBackendType selects how the semantic cache searches.
type SemanticBackendType string

const (
	// SemanticBackendVector embeds with the configured embedding provider and searches a local or redis index.
	SemanticBackendVector SemanticBackendType = "vector"
	// SemanticBackendLibrary delegates embedding and search to the semanticcache library.
	SemanticBackendLibrary SemanticBackendType = "library"
)

// ExactCacheConfig holds configuration for the two-tier exact cache
type ExactCacheConfig struct {
	Enabled    *bool            `json:"enabled,omitzero" yaml:"enabled,omitempty"`
	Durable    CacheBackendType `json:"durable,omitzero" yaml:"durable,omitempty"` // "database", "redis" or "none"
	Capacity   int              `json:"capacity,omitzero" yaml:"capacity,omitempty"`
	TTLSeconds int              `json:"ttl_seconds,omitzero" yaml:"ttl_seconds,omitempty"`
}

// IsEnabled defaults to true when unset.
func (c ExactCacheConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// SemanticCacheConfig holds configuration for the similarity cache (optional)
type SemanticCacheConfig struct {
	Enabled           bool                `json:"enabled,omitzero" yaml:"enabled"`
	Backend           SemanticBackendType `json:"backend,omitzero" yaml:"backend,omitempty"`
	Index             CacheBackendType    `json:"index,omitzero" yaml:"index,omitempty"` // "memory" or "redis"
	Capacity          int                 `json:"capacity,omitzero" yaml:"capacity,omitempty"`
	TTLSeconds        int                 `json:"ttl_seconds,omitzero" yaml:"ttl_seconds,omitempty"`
	SemanticThreshold float64             `json:"semantic_threshold,omitzero" yaml:"semantic_threshold"`
	AllowLowThreshold bool                `json:"allow_low_threshold,omitzero" yaml:"allow_low_threshold,omitempty"`
}

// CacheConfig groups both cache tiers.
type CacheConfig struct {
	Exact    ExactCacheConfig    `json:"exact" yaml:"exact"`
	Semantic SemanticCacheConfig `json:"semantic" yaml:"semantic"`
}

// EmbeddingConfig selects the embedding model.
type EmbeddingConfig struct {
	Provider      ProviderType `json:"provider,omitzero" yaml:"provider"` // "openai" or "gemini"
	APIKey        string       `json:"-" yaml:"api_key"`
	BaseURL       string       `json:"base_url,omitzero" yaml:"base_url,omitempty"`
	Model         string       `json:"model,omitzero" yaml:"model,omitempty"`
	MaxInputChars int          `json:"max_input_chars,omitzero" yaml:"max_input_chars,omitempty"`
	TimeoutMs     int          `json:"timeout_ms,omitzero" yaml:"timeout_ms,omitempty"`
}
