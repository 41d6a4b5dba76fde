package workflows

import "github.com/parchmentlabs/parchment/internal/models"

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

// ChatInput starts one chat workflow run.
type ChatInput struct {
	Prompt    string           `json:"prompt"`
	SessionID string           `json:"session_id,omitempty"`
	IndexIDs  []string         `json:"index_ids,omitempty"`
	History   []models.Message `json:"history,omitempty"`
}

// ChatResult is the terminal payload of a run. Failures surface here as
// a result with StatusError rather than a workflow error, so callers
// always get a payload to show.
type ChatResult struct {
	Status       string `json:"status"`
	Result       string `json:"result,omitempty"`
	Message      string `json:"message,omitempty"`
	Source       string `json:"source,omitempty"`
	RewriteCount int    `json:"rewrite_count"`
}
