package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/toolfilter/internal/core/config"
	"github.com/vietddude/toolfilter/internal/core/domain"
	"github.com/vietddude/toolfilter/internal/enrichment/retry"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 20
)

// AnthropicClassifier labels tools through the Anthropic messages API.
type AnthropicClassifier struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float32
	httpClient  *http.Client
	log         *slog.Logger
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature"`
	System      string             `json:"system"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropic creates a classifier for the messages API. BaseURL may carry
// a trailing /v1.
func NewAnthropic(cfg config.AnthropicConfig, log *slog.Logger) *AnthropicClassifier {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = config.DefaultAnthropicBaseURL
	}
	base = strings.TrimSuffix(base, "/v1")

	model := cfg.Model
	if model == "" {
		model = config.DefaultAnthropicModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &AnthropicClassifier{
		endpoint:    base + "/v1/messages",
		apiKey:      cfg.APIKey,
		model:       model,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log.With("classifier", "anthropic", "model", model),
	}
}

func (a *AnthropicClassifier) Name() string { return "anthropic" }

// Classify asks the model for a single label.
func (a *AnthropicClassifier) Classify(ctx context.Context, name string, def domain.ToolDefinition, labels []string) (string, error) {
	jsonData, err := json.Marshal(anthropicRequest{
		Model:       a.model,
		MaxTokens:   anthropicMaxTokens,
		Temperature: a.temperature,
		System:      systemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: BuildPrompt(name, def, labels)}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(bytes.TrimSpace(body))
		var apiErr anthropicError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Type + ": " + apiErr.Error.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			a.log.Warn("Anthropic rate limit exceeded", "tool", name, "retry_after", resp.Header.Get("retry-after"))
		}
		return "", fmt.Errorf("anthropic: %w", &retry.StatusError{Code: resp.StatusCode, Message: msg})
	}

	var out anthropicResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("parse response: %w: %v", retry.ErrInvalidResponse, err)
	}
	var reply string
	for _, block := range out.Content {
		if block.Type == "text" || block.Type == "" {
			reply = block.Text
			break
		}
	}
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("anthropic returned no text: %w", retry.ErrInvalidResponse)
	}

	label := NormalizeLabel(reply, labels)
	if label == domain.CategoryOther && reply != domain.CategoryOther {
		a.log.Warn("Classifier returned unknown label", "tool", name, "reply", reply)
	}
	return label, nil
}
