package models

import "strings"

// ProviderType selects which SDK talks to a model endpoint.
type ProviderType string

const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderGemini     ProviderType = "gemini"
)

// ProviderConfig holds configuration for one model key in the fallback chain
type ProviderConfig struct {
	Provider  ProviderType      `yaml:"provider" json:"provider"`
	ModelID   string            `yaml:"model_id" json:"model_id"`
	Name      string            `yaml:"name,omitempty" json:"name,omitzero"`
	APIKey    string            `yaml:"api_key" json:"-"`
	BaseURL   string            `yaml:"base_url,omitempty" json:"base_url,omitzero"`     // Optional custom base URL
	TimeoutMs int               `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitzero"` // Per-call timeout in milliseconds
	JSONMode  *bool             `yaml:"json_mode,omitempty" json:"json_mode,omitzero"`   // Request structured JSON output when supported
	Headers   map[string]string `yaml:"headers,omitempty" json:"headers,omitzero"`       // Optional custom headers
}

// WantsJSONMode reports whether the request should ask for a JSON object response.
// Gemini-family model IDs reject response_format on OpenAI-compatible gateways.
func (p ProviderConfig) WantsJSONMode() bool {
	if p.JSONMode != nil {
		return *p.JSONMode
	}
	return p.Provider != ProviderGemini && !strings.Contains(strings.ToLower(p.ModelID), "gemini")
}

// ModelsConfig is the ordered fallback chain plus per-key definitions.
type ModelsConfig struct {
	Chain       []string                  `yaml:"chain" json:"chain"`
	Definitions map[string]ProviderConfig `yaml:"definitions" json:"definitions"`
	Temperature float64                   `yaml:"temperature,omitempty" json:"temperature,omitzero"`
	MaxTokens   int                       `yaml:"max_tokens,omitempty" json:"max_tokens,omitzero"`
	TimeoutMs   int                       `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitzero"`
}
