// Package agents implements the retrieval-and-refinement agent chain:
// sufficiency checking, research gathering, drafting, and review.
package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/llm"
	"github.com/parchmentlabs/parchment/internal/models"
)

// SufficiencyResult says whether new research is needed for a query.
type SufficiencyResult struct {
	NeedsSearch bool   `json:"needs_search"`
	Reason      string `json:"reason"`
}

// HistoryChecker decides whether the conversation so far already answers
// the query.
type HistoryChecker struct {
	llm     llm.Client
	prompts Prompts
	logger  *zap.Logger
}

func NewHistoryChecker(client llm.Client, prompts Prompts, logger *zap.Logger) *HistoryChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryChecker{llm: client, prompts: prompts, logger: logger}
}

// NeedsSearch is deterministic for empty history: always search, no LLM
// call. For non-empty history the LLM answers YES/NO; anything that does
// not start with YES means search, so malformed output fails safe.
func (c *HistoryChecker) NeedsSearch(ctx context.Context, query string, history []models.Message) SufficiencyResult {
	if len(history) == 0 {
		return SufficiencyResult{NeedsSearch: true, Reason: "no conversation history"}
	}

	prompt := fmt.Sprintf(c.prompts.HistoryCheck, FormatTranscript(history), query)
	resp, err := c.llm.Complete(ctx, prompt)
	if err != nil {
		c.logger.Warn("History sufficiency check failed, defaulting to search", zap.Error(err))
		return SufficiencyResult{NeedsSearch: true, Reason: "sufficiency check failed: " + err.Error()}
	}

	trimmed := strings.TrimSpace(resp)
	if strings.HasPrefix(trimmed, "YES") {
		return SufficiencyResult{NeedsSearch: false, Reason: trimmed}
	}
	return SufficiencyResult{NeedsSearch: true, Reason: trimmed}
}

// FormatTranscript renders history as a plain role-prefixed transcript.
func FormatTranscript(history []models.Message) string {
	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", m.Role, m.Content)
	}
	return b.String()
}
