package schemas

import (
	"context"
)

// -- Store Interfaces --

// Store persists the history of application runs. Implementations exist for
// PostgreSQL and SQLite.
type Store interface {
	// SaveApplication writes a run record and its submission attempts.
	SaveApplication(ctx context.Context, rec ApplicationRecord) error
	// GetApplication loads a single run by ID.
	GetApplication(ctx context.Context, id string) (*ApplicationRecord, error)
	// ListApplications returns the most recent runs, newest first.
	ListApplications(ctx context.Context, limit int) ([]ApplicationRecord, error)
	Close() error
}

// SearchIndex ranks stored job postings against free text.
type SearchIndex interface {
	Index(ctx context.Context, p Posting) error
	Query(ctx context.Context, text string, limit int) ([]SearchResult, error)
}

// -- Notification --

// Notifier delivers the terminal event of a run. Delivery is best effort;
// callers log a returned error and carry on.
type Notifier interface {
	Send(ctx context.Context, event ApplicationEvent) error
}

// -- LLM Client Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions controls sampling and output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
	TopP            float64 `json:"top_p"`
	TopK            int     `json:"top_k"`
}

// GenerationRequest encapsulates a complete request to the LLM, including the
// system and user prompts, the desired model tier, and generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close releases any resources held by the client.
	Close() error
}
