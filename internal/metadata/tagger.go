package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/llm"
	"github.com/parchmentlabs/parchment/internal/models"
)

const tagPromptTemplate = `Analyze the following document and return a JSON object with exactly these fields:
{"themes": [up to 5 short theme strings], "topics": [up to 5 topic strings], "keywords": [up to 10 keyword strings], "entities": [up to 10 named entities], "summary": "2-3 sentence summary"}

Return only the JSON object, no other text.

Document title: %s

Document text (may be truncated):
%s`

// maxTagInput bounds how much document text goes into the tagging prompt.
const maxTagInput = 8000

// Tagger derives AutoMetadata from document text with one LLM call.
type Tagger struct {
	llm    llm.Client
	logger *zap.Logger
}

func NewTagger(client llm.Client, logger *zap.Logger) *Tagger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tagger{llm: client, logger: logger}
}

// Tag asks the LLM for tags. Malformed output degrades to empty metadata
// rather than failing the ingest that triggered it.
func (t *Tagger) Tag(ctx context.Context, title, text string) models.AutoMetadata {
	if len(text) > maxTagInput {
		text = text[:maxTagInput]
	}
	resp, err := t.llm.Complete(ctx, fmt.Sprintf(tagPromptTemplate, title, text))
	if err != nil {
		t.logger.Warn("Auto-metadata tagging failed", zap.String("title", title), zap.Error(err))
		return models.AutoMetadata{}
	}

	var auto models.AutoMetadata
	if err := json.Unmarshal([]byte(extractJSON(resp)), &auto); err != nil {
		t.logger.Warn("Auto-metadata response was not valid JSON",
			zap.String("title", title), zap.Error(err))
		return models.AutoMetadata{}
	}
	return auto
}

// extractJSON pulls the first {...} object out of a response that may be
// wrapped in markdown fences or prose.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
