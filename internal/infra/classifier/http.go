package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/toolfilter/internal/core/config"
	"github.com/vietddude/toolfilter/internal/core/domain"
	"github.com/vietddude/toolfilter/internal/enrichment/retry"
)

const maxResponseBytes = 64 << 10

// HTTPClassifier posts tool definitions to a JSON endpoint.
type HTTPClassifier struct {
	endpoint   string
	token      string
	httpClient *http.Client
	log        *slog.Logger
}

type httpRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
	Labels      []string       `json:"labels"`
}

type httpResponse struct {
	Label string `json:"label"`
}

// NewHTTP creates a classifier for a generic labeling service.
func NewHTTP(cfg config.HTTPConfig, log *slog.Logger) *HTTPClassifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &HTTPClassifier{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log.With("classifier", "http"),
	}
}

func (h *HTTPClassifier) Name() string { return "http" }

// Classify makes a single labeling request.
func (h *HTTPClassifier) Classify(ctx context.Context, name string, def domain.ToolDefinition, labels []string) (string, error) {
	jsonData, err := json.Marshal(httpRequest{
		Name:        name,
		Description: def.Description,
		InputSchema: def.InputSchema,
		Labels:      labels,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("classify call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &retry.StatusError{Code: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	}

	var out httpResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("parse response: %w: %v", retry.ErrInvalidResponse, err)
	}
	if out.Label == "" {
		return "", fmt.Errorf("empty label: %w", retry.ErrInvalidResponse)
	}

	label := NormalizeLabel(out.Label, labels)
	if label == domain.CategoryOther && out.Label != domain.CategoryOther {
		h.log.Warn("Classifier returned unknown label", "tool", name, "label", out.Label)
	}
	return label, nil
}
