package invoker

import (
	"context"
	"fmt"
	"strings"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/utils/clientcache"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

const defaultAnthropicMaxTokens = 1024

type anthropicBackend struct {
	clients *clientcache.Cache[*anthropic.Client]
}

func newAnthropicBackend() *anthropicBackend {
	return &anthropicBackend{clients: clientcache.NewCache[*anthropic.Client]()}
}

func (b *anthropicBackend) client(def models.ProviderConfig) (*anthropic.Client, error) {
	key := clientcache.Fingerprint(def.BaseURL, def.APIKey, def.Headers)
	return b.clients.GetOrCreate(key, func() (*anthropic.Client, error) {
		fiberlog.Debugf("Creating new Anthropic client (config hash: %s)", key[:8])

		opts := []option.RequestOption{
			option.WithAPIKey(def.APIKey),
			option.WithMaxRetries(0),
		}
		if def.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(def.BaseURL))
		}
		for name, value := range def.Headers {
			opts = append(opts, option.WithHeader(name, value))
		}

		client := anthropic.NewClient(opts...)
		return &client, nil
	})
}

func (b *anthropicBackend) complete(ctx context.Context, def models.ProviderConfig, req Request) (string, error) {
	client, err := b.client(def)
	if err != nil {
		return "", fmt.Errorf("failed to create client: %w", err)
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(def.ModelID),
		MaxTokens:   maxTokens,
		System:      []anthropic.TextBlockParam{{Text: req.System}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
		Temperature: anthropic.Float(req.Temperature),
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
