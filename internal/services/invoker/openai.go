package invoker

import (
	"context"
	"fmt"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/utils/clientcache"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// openAIBackend serves OpenAI and any OpenAI-compatible gateway (OpenRouter).
type openAIBackend struct {
	clients *clientcache.Cache[*openai.Client]
}

func newOpenAIBackend() *openAIBackend {
	return &openAIBackend{clients: clientcache.NewCache[*openai.Client]()}
}

func (b *openAIBackend) client(def models.ProviderConfig) (*openai.Client, error) {
	baseURL := def.BaseURL
	if baseURL == "" && def.Provider == models.ProviderOpenRouter {
		baseURL = openRouterBaseURL
	}

	key := clientcache.Fingerprint(baseURL, def.APIKey, def.Headers)
	return b.clients.GetOrCreate(key, func() (*openai.Client, error) {
		fiberlog.Debugf("Creating new OpenAI-compatible client (config hash: %s)", key[:8])

		opts := []option.RequestOption{
			option.WithAPIKey(def.APIKey),
			option.WithMaxRetries(0),
		}
		if baseURL != "" {
			opts = append(opts, option.WithBaseURL(baseURL))
		}
		for name, value := range def.Headers {
			opts = append(opts, option.WithHeader(name, value))
		}

		client := openai.NewClient(opts...)
		return &client, nil
	})
}

func (b *openAIBackend) complete(ctx context.Context, def models.ProviderConfig, req Request) (string, error) {
	client, err := b.client(def)
	if err != nil {
		return "", fmt.Errorf("failed to create client: %w", err)
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(def.ModelID),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if def.WantsJSONMode() {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", models.NewMalformedResponseError(def.ModelID, "no choices in response", nil)
	}
	return resp.Choices[0].Message.Content, nil
}
