package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/vietddude/toolfilter/internal/core/config"
	"github.com/vietddude/toolfilter/internal/core/domain"
	"github.com/vietddude/toolfilter/internal/enrichment/retry"
)

const openAIMaxTokens = 20

// OpenAIClassifier labels tools through the chat completions API.
type OpenAIClassifier struct {
	client      *openai.Client
	model       string
	temperature float32
	log         *slog.Logger
}

// NewOpenAI creates a classifier for an OpenAI-compatible endpoint.
func NewOpenAI(cfg config.OpenAIConfig, log *slog.Logger) *OpenAIClassifier {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultOpenAIModel
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenAIClassifier{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
		log:         log.With("classifier", "openai", "model", model),
	}
}

func (o *OpenAIClassifier) Name() string { return "openai" }

// Classify asks the model for a single label.
func (o *OpenAIClassifier) Classify(ctx context.Context, name string, def domain.ToolDefinition, labels []string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(name, def, labels)},
		},
		Temperature: o.temperature,
		MaxTokens:   openAIMaxTokens,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai returned no choices: %w", retry.ErrInvalidResponse)
	}

	reply := resp.Choices[0].Message.Content
	label := NormalizeLabel(reply, labels)
	if label == domain.CategoryOther && reply != domain.CategoryOther {
		o.log.Warn("Classifier returned unknown label", "tool", name, "reply", reply)
	}
	return label, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Errorf("openai: %w", &retry.StatusError{Code: apiErr.HTTPStatusCode, Message: apiErr.Message})
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return fmt.Errorf("openai: %w", &retry.StatusError{Code: reqErr.HTTPStatusCode, Message: reqErr.Error()})
	}
	return fmt.Errorf("openai: %w", err)
}
