// Package classifier provides the backends that label unknown tools.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vietddude/toolfilter/internal/core/config"
	"github.com/vietddude/toolfilter/internal/core/domain"
)

// Classifier labels a tool with one of the candidate labels.
type Classifier interface {
	Classify(ctx context.Context, name string, def domain.ToolDefinition, labels []string) (string, error)
	Name() string
}

// New builds the classifier selected by enrichment.classifier.
func New(provider string, cfg config.ClassifierConfig, log *slog.Logger) (Classifier, error) {
	switch provider {
	case "openai":
		return NewOpenAI(cfg.OpenAI, log), nil
	case "anthropic":
		return NewAnthropic(cfg.Anthropic, log), nil
	case "http":
		return NewHTTP(cfg.HTTP, log), nil
	default:
		return nil, fmt.Errorf("unknown classifier %q", provider)
	}
}

// NormalizeLabel maps a raw reply onto the candidate set. Replies that are not
// exactly one of the labels (after trimming and lowercasing) become "other".
func NormalizeLabel(reply string, labels []string) string {
	label := strings.ToLower(strings.TrimSpace(reply))
	label = strings.Trim(label, "\"'`.")
	for _, l := range labels {
		if label == l {
			return l
		}
	}
	return domain.CategoryOther
}
