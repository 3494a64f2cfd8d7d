package domain

import (
	"time"

	"github.com/google/uuid"
)

// Well-known categories.
const (
	CategoryFilesystem     = "filesystem"
	CategoryWeb            = "web"
	CategorySearch         = "search"
	CategoryDatabase       = "database"
	CategoryVersionControl = "version-control"
	CategoryDocker         = "docker"
	CategoryCloud          = "cloud"
	CategoryDevelopment    = "development"
	CategoryCommunication  = "communication"
	CategoryOther          = "other"
)

// ToolDefinition is the part of a tool description the engine looks at.
type ToolDefinition struct {
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// EnrichmentTask asks the classifier to categorize a tool.
type EnrichmentTask struct {
	ID         uuid.UUID
	ToolName   string
	Definition ToolDefinition
	EnqueuedAt time.Time
}

// NewEnrichmentTask creates a task stamped with a fresh ID.
func NewEnrichmentTask(name string, def ToolDefinition) EnrichmentTask {
	return EnrichmentTask{
		ID:         uuid.New(),
		ToolName:   name,
		Definition: def,
		EnqueuedAt: time.Now(),
	}
}
