package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	cfg "github.com/feichai0017/legal-intel/config"
	"github.com/feichai0017/legal-intel/internal/models"
)

// OpenAIProvider backs the gateway with an OpenAI-compatible API.
type OpenAIProvider struct {
	client         *openai.Client
	textModel      string
	embeddingModel string
}

func NewOpenAIProvider(config *cfg.GatewayConfig) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		client:         openai.NewClientWithConfig(clientConfig),
		textModel:      config.TextModel,
		embeddingModel: config.EmbeddingModel,
	}
}

func (p *OpenAIProvider) GenerateText(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.textModel,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response: %w", models.ErrPermanentService)
	}

	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.embeddingModel),
	})
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response: %w", models.ErrPermanentService)
	}

	return resp.Data[0].Embedding, nil
}

// classifyError maps provider failures onto the pipeline taxonomy.
// Rate limits and server errors are transient; schema and policy
// rejections are permanent.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("provider error (status %d): %w", apiErr.HTTPStatusCode, models.ErrTransientService)
		}
		return fmt.Errorf("provider error (status %d): %w", apiErr.HTTPStatusCode, models.ErrPermanentService)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	// Network-level failures without an API error are worth a retry.
	return fmt.Errorf("provider call failed: %v: %w", err, models.ErrTransientService)
}
