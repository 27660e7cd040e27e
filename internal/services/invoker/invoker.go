package invoker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

const defaultTimeout = 30 * time.Second

// Request is one single-turn completion.
type Request struct {
	RequestID   string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Invoker sends a Request to the model registered under key and returns the
// raw text of the reply. Errors are *models.AppError carrying a FailureKind.
type Invoker interface {
	Invoke(ctx context.Context, key string, req Request) (string, error)
}

// backend is one provider SDK.
type backend interface {
	complete(ctx context.Context, def models.ProviderConfig, req Request) (string, error)
}

// Registry dispatches model keys to the SDK named by their provider and
// applies each model's timeout.
type Registry struct {
	definitions    map[string]models.ProviderConfig
	defaultTimeout time.Duration
	backends       map[models.ProviderType]backend
}

// NewRegistry creates a registry for the given definitions. timeout applies
// to models without their own timeout_ms.
func NewRegistry(definitions map[string]models.ProviderConfig, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	openaiBackend := newOpenAIBackend()
	return &Registry{
		definitions:    definitions,
		defaultTimeout: timeout,
		backends: map[models.ProviderType]backend{
			models.ProviderOpenAI:     openaiBackend,
			models.ProviderOpenRouter: openaiBackend,
			models.ProviderAnthropic:  newAnthropicBackend(),
			models.ProviderGemini:     newGeminiBackend(),
		},
	}
}

// Invoke implements Invoker.
func (r *Registry) Invoke(ctx context.Context, key string, req Request) (string, error) {
	def, ok := r.definitions[key]
	if !ok {
		return "", models.NewProviderError(key, models.FailureUnknown, "model is not configured", nil)
	}
	if def.APIKey == "" {
		return "", models.NewProviderError(key, models.FailureProviderAuth, "API key not configured", nil)
	}

	be, ok := r.backends[def.Provider]
	if !ok {
		return "", models.NewProviderError(key, models.FailureUnknown, fmt.Sprintf("unsupported provider %q", def.Provider), nil)
	}

	timeout := r.defaultTimeout
	if def.TimeoutMs > 0 {
		timeout = time.Duration(def.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	fiberlog.Infof("[%s] Invoking %s (%s/%s, timeout %v)", req.RequestID, key, def.Provider, def.ModelID, timeout)

	text, err := be.complete(ctx, def, req)
	if err != nil {
		appErr := Classify(key, err)
		fiberlog.Warnf("[%s] %s failed after %v: %s", req.RequestID, key, time.Since(start), appErr.Kind)
		return "", appErr
	}

	if strings.TrimSpace(text) == "" {
		return "", models.NewMalformedResponseError(key, "empty response content", nil)
	}

	fiberlog.Infof("[%s] %s responded in %v", req.RequestID, key, time.Since(start))
	return text, nil
}
