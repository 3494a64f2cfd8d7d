package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/toolfilter/internal/core/config"
	"github.com/vietddude/toolfilter/internal/core/domain"
	"github.com/vietddude/toolfilter/internal/enrichment/retry"
)

var testLabels = []string{"filesystem", "web", "database", "other"}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		reply string
		want  string
	}{
		{"web", "web"},
		{"  Web \n", "web"},
		{"\"database\".", "database"},
		{"the category is web", "other"},
		{"cooking", "other"},
		{"", "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeLabel(tt.reply, testLabels), "reply %q", tt.reply)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("fetch_url", domain.ToolDefinition{
		InputSchema: map[string]any{"type": "object"},
	}, testLabels)

	assert.Contains(t, p, "filesystem, web, database, other")
	assert.Contains(t, p, "Tool Name: fetch_url")
	assert.Contains(t, p, "Description: N/A")
	assert.Contains(t, p, `"type": "object"`)
}

func TestNew(t *testing.T) {
	c, err := New("http", config.ClassifierConfig{HTTP: config.HTTPConfig{Endpoint: "http://localhost"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http", c.Name())

	c, err = New("openai", config.ClassifierConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	c, err = New("anthropic", config.ClassifierConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())

	_, err = New("gemini", config.ClassifierConfig{}, nil)
	assert.Error(t, err)
}

func TestHTTPClassifier_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req httpRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "read_file", req.Name)
		assert.Equal(t, testLabels, req.Labels)

		_ = json.NewEncoder(w).Encode(httpResponse{Label: "Filesystem"})
	}))
	defer srv.Close()

	c := NewHTTP(config.HTTPConfig{Endpoint: srv.URL, Token: "secret"}, nil)
	got, err := c.Classify(context.Background(), "read_file", domain.ToolDefinition{Description: "Read a file"}, testLabels)
	require.NoError(t, err)
	assert.Equal(t, "filesystem", got)
}

func TestHTTPClassifier_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantClass retry.ErrorClass
	}{
		{"rate limited", http.StatusTooManyRequests, "slow down", retry.Transient},
		{"server error", http.StatusBadGateway, "bad gateway", retry.Transient},
		{"unauthorized", http.StatusUnauthorized, "no", retry.Permanent},
		{"garbage", http.StatusOK, "not json", retry.Permanent},
		{"empty label", http.StatusOK, `{"label":""}`, retry.Permanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewHTTP(config.HTTPConfig{Endpoint: srv.URL}, nil)
			_, err := c.Classify(context.Background(), "tool", domain.ToolDefinition{}, testLabels)
			require.Error(t, err)
			assert.Equal(t, tt.wantClass, retry.Classify(err))
		})
	}
}

func TestHTTPClassifier_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewHTTP(config.HTTPConfig{Endpoint: srv.URL}, nil)
	_, err := c.Classify(ctx, "tool", domain.ToolDefinition{}, testLabels)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func openAIServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClassifier_Success(t *testing.T) {
	srv := openAIServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "gpt-4o-mini",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "web"}, "finish_reason": "stop"}]
	}`)

	c := NewOpenAI(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"}, nil)
	got, err := c.Classify(context.Background(), "fetch", domain.ToolDefinition{Description: "fetch a url"}, testLabels)
	require.NoError(t, err)
	assert.Equal(t, "web", got)
}

func TestOpenAIClassifier_UnknownLabelIsOther(t *testing.T) {
	srv := openAIServer(t, http.StatusOK, `{
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "cooking"}}]
	}`)

	c := NewOpenAI(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"}, nil)
	got, err := c.Classify(context.Background(), "bake", domain.ToolDefinition{}, testLabels)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryOther, got)
}

func TestOpenAIClassifier_NoChoices(t *testing.T) {
	srv := openAIServer(t, http.StatusOK, `{"choices": []}`)

	c := NewOpenAI(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"}, nil)
	_, err := c.Classify(context.Background(), "x", domain.ToolDefinition{}, testLabels)
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrInvalidResponse)
}

func TestOpenAIClassifier_StatusMapping(t *testing.T) {
	srv := openAIServer(t, http.StatusTooManyRequests, `{"error": {"message": "rate limit reached", "type": "requests"}}`)

	c := NewOpenAI(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"}, nil)
	_, err := c.Classify(context.Background(), "x", domain.ToolDefinition{}, testLabels)
	require.Error(t, err)

	var se *retry.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Equal(t, retry.Transient, retry.Classify(err))
}

func anthropicServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, config.DefaultAnthropicModel, req.Model)
		assert.Equal(t, anthropicMaxTokens, req.MaxTokens)
		assert.Equal(t, systemPrompt, req.System)
		require.Len(t, req.Messages, 1)
		assert.Contains(t, req.Messages[0].Content, "Tool Name: ")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropicClassifier_Success(t *testing.T) {
	srv := anthropicServer(t, http.StatusOK, `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"content": [{"type": "text", "text": " Database\n"}],
		"stop_reason": "end_turn"
	}`)

	c := NewAnthropic(config.AnthropicConfig{APIKey: "k", BaseURL: srv.URL + "/v1"}, nil)
	got, err := c.Classify(context.Background(), "run_query", domain.ToolDefinition{Description: "Run SQL"}, testLabels)
	require.NoError(t, err)
	assert.Equal(t, "database", got)
}

func TestAnthropicClassifier_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCode  int
		wantClass retry.ErrorClass
	}{
		{"rate limited", http.StatusTooManyRequests,
			`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`, 429, retry.Transient},
		{"overloaded", 529,
			`{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`, 529, retry.Transient},
		{"bad key", http.StatusUnauthorized,
			`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, 401, retry.Permanent},
		{"empty content", http.StatusOK, `{"content": []}`, 0, retry.Permanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := anthropicServer(t, tt.status, tt.body)

			c := NewAnthropic(config.AnthropicConfig{APIKey: "k", BaseURL: srv.URL}, nil)
			_, err := c.Classify(context.Background(), "tool", domain.ToolDefinition{}, testLabels)
			require.Error(t, err)
			assert.Equal(t, tt.wantClass, retry.Classify(err))

			var se *retry.StatusError
			if tt.wantCode == 0 {
				assert.ErrorIs(t, err, retry.ErrInvalidResponse)
				assert.False(t, errors.As(err, &se))
				return
			}
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.wantCode, se.Code)
		})
	}
}
