package agents

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/llm"
	"github.com/parchmentlabs/parchment/internal/models"
)

// WriteRequest carries everything the writing step may need. Guidance
// and Feedback are mutually exclusive: guidance comes from the pre-write
// review of fresh research, feedback marks a rewrite after a failed
// post-write review.
type WriteRequest struct {
	Prompt   string           `json:"prompt"`
	Research string           `json:"research"`
	Guidance string           `json:"guidance,omitempty"`
	Feedback string           `json:"feedback,omitempty"`
	History  []models.Message `json:"history,omitempty"`
}

// WriteAgent drafts answers from research.
type WriteAgent struct {
	specialist *Specialist
	prompts    Prompts
	logger     *zap.Logger
}

func NewWriteAgent(client llm.Client, prompts Prompts, logger *zap.Logger) *WriteAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WriteAgent{
		specialist: NewSpecialist(WritingAgent, client, prompts, logger),
		prompts:    prompts,
		logger:     logger,
	}
}

// Write produces a draft answer. It has no retry logic of its own;
// failures surface to the caller.
func (a *WriteAgent) Write(ctx context.Context, req WriteRequest) (string, error) {
	var instruction string
	if req.Feedback != "" {
		instruction = fmt.Sprintf(a.prompts.Rewrite, req.Feedback, req.Prompt, req.Research)
	} else {
		instruction = fmt.Sprintf(a.prompts.Write, req.Prompt, req.Research)
		if req.Guidance != "" {
			instruction += "\n\nGuidance from review:\n" + req.Guidance
		}
	}
	if len(req.History) > 0 {
		instruction += "\n\nConversation so far:\n" + FormatTranscript(req.History)
	}

	draft, err := a.specialist.Execute(ctx, instruction)
	if err != nil {
		return "", fmt.Errorf("write draft: %w", err)
	}
	return draft, nil
}
