package category

import (
	"strings"

	"github.com/vietddude/toolfilter/internal/core/domain"
)

var keywords = []struct {
	category string
	words    []string
}{
	{domain.CategoryFilesystem, []string{"file", "directory", "folder", "path"}},
	{domain.CategoryWeb, []string{"http", "url", "web page", "webpage", "browser", "fetch"}},
	{domain.CategorySearch, []string{"search", "lookup", "find"}},
	{domain.CategoryDatabase, []string{"sql", "database", "table", "query"}},
	{domain.CategoryVersionControl, []string{"git", "commit", "branch", "pull request", "repository"}},
	{domain.CategoryDocker, []string{"docker", "container", "kubernetes", "pod"}},
	{domain.CategoryCloud, []string{"aws", "gcp", "azure", "bucket", "cloud"}},
	{domain.CategoryDevelopment, []string{"compile", "lint", "format", "package", "build", "test"}},
	{domain.CategoryCommunication, []string{"message", "email", "slack", "notify", "channel"}},
}

// Guess derives a category from keywords in the tool name and description.
// It is the fallback when the classifier is unavailable. ok is false when no
// keyword is present.
func Guess(name string, def domain.ToolDefinition) (string, bool) {
	text := strings.ToLower(name + " " + def.Description)
	for _, k := range keywords {
		for _, w := range k.words {
			if strings.Contains(text, w) {
				return k.category, true
			}
		}
	}
	return "", false
}
