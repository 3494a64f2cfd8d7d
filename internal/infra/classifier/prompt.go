package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vietddude/toolfilter/internal/core/domain"
)

const systemPrompt = "You are a tool categorization expert. Respond with only the category name, nothing else."

// BuildPrompt renders the user message sent to chat-style classifiers.
func BuildPrompt(name string, def domain.ToolDefinition, labels []string) string {
	desc := def.Description
	if desc == "" {
		desc = "N/A"
	}

	schema := []byte("{}")
	if len(def.InputSchema) > 0 {
		if b, err := json.MarshalIndent(def.InputSchema, "", "  "); err == nil {
			schema = b
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Categorize this MCP tool into ONE of these categories: %s\n\n", strings.Join(labels, ", "))
	fmt.Fprintf(&sb, "Tool Name: %s\n", name)
	fmt.Fprintf(&sb, "Description: %s\n", desc)
	fmt.Fprintf(&sb, "Input Schema: %s\n\n", schema)
	sb.WriteString("Respond with ONLY the category name.")
	return sb.String()
}
