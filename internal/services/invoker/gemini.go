package invoker

import (
	"context"
	"fmt"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/utils/clientcache"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"google.golang.org/genai"
)

type geminiBackend struct {
	clients *clientcache.Cache[*genai.Client]
}

func newGeminiBackend() *geminiBackend {
	return &geminiBackend{clients: clientcache.NewCache[*genai.Client]()}
}

func (b *geminiBackend) client(ctx context.Context, def models.ProviderConfig) (*genai.Client, error) {
	key := clientcache.Fingerprint(def.BaseURL, def.APIKey, def.Headers)
	return b.clients.GetOrCreate(key, func() (*genai.Client, error) {
		fiberlog.Debugf("Creating new Gemini client (config hash: %s)", key[:8])

		cfg := &genai.ClientConfig{
			APIKey:  def.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
		if def.BaseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: def.BaseURL}
		}
		// The client outlives this request, so it must not inherit its deadline.
		client, err := genai.NewClient(context.WithoutCancel(ctx), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return client, nil
	})
}

func (b *geminiBackend) complete(ctx context.Context, def models.ProviderConfig, req Request) (string, error) {
	client, err := b.client(ctx, def)
	if err != nil {
		return "", err
	}

	temperature := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		Temperature:       &temperature,
		ResponseMIMEType:  "application/json",
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := client.Models.GenerateContent(ctx, def.ModelID, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
