package models

import "time"

// ContentType identifies how a piece of cached content entered the system.
type ContentType string

const (
	ContentTypePage     ContentType = "page"
	ContentTypeDatabase ContentType = "database"
	ContentTypePDF      ContentType = "pdf"
	ContentTypeText     ContentType = "text"
	ContentTypeMarkdown ContentType = "markdown"
)

// AutoMetadata is the LLM-derived tag set stored alongside each content index.
type AutoMetadata struct {
	Themes   []string `json:"themes"`
	Topics   []string `json:"topics"`
	Keywords []string `json:"keywords"`
	Entities []string `json:"entities"`
	Summary  string   `json:"summary"`
}

// ContentIndex is the metadata record for one indexed piece of content.
// The ID doubles as the vector collection identifier.
type ContentIndex struct {
	ID        string       `json:"id"`
	Type      ContentType  `json:"type"`
	Title     string       `json:"title"`
	Folder    string       `json:"folder"`
	Auto      AutoMetadata `json:"auto_metadata"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// IndexSummary is the trimmed listing entry returned by the cache layer.
type IndexSummary struct {
	ID       string      `json:"id"`
	Type     ContentType `json:"type"`
	Title    string      `json:"title"`
	Folder   string      `json:"folder"`
	Themes   []string    `json:"themes"`
	Keywords []string    `json:"keywords"`
}

// Message is a single conversational turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
