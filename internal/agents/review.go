package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/llm"
	"github.com/parchmentlabs/parchment/internal/metrics"
)

// DirectAnswerMarker is the literal prefix a pre-write review uses to
// short-circuit drafting entirely.
const DirectAnswerMarker = "DIRECT_ANSWER:"

// PreWriteResult is the outcome of reviewing the research brief before
// anything is drafted.
type PreWriteResult struct {
	// Direct is set when the review already contains the final answer.
	Direct bool   `json:"direct"`
	Answer string `json:"answer,omitempty"`
	// Guidance carries the review text into the writing step.
	Guidance string `json:"guidance,omitempty"`
}

// ReviewAgent critiques research briefs and drafted answers.
type ReviewAgent struct {
	specialist *Specialist
	llm        llm.Client
	prompts    Prompts
	logger     *zap.Logger
}

func NewReviewAgent(client llm.Client, prompts Prompts, logger *zap.Logger) *ReviewAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewAgent{
		specialist: NewSpecialist(ReviewingAgent, client, prompts, logger),
		llm:        client,
		prompts:    prompts,
		logger:     logger,
	}
}

// PreWrite reviews the research brief. A response starting with the
// DIRECT_ANSWER marker ends the run with the marker stripped.
func (a *ReviewAgent) PreWrite(ctx context.Context, prompt, research string) (*PreWriteResult, error) {
	review, err := a.specialist.Execute(ctx, fmt.Sprintf(a.prompts.PreWriteReview, prompt, research))
	if err != nil {
		return nil, fmt.Errorf("pre-write review: %w", err)
	}

	trimmed := strings.TrimSpace(review)
	if strings.HasPrefix(trimmed, DirectAnswerMarker) {
		metrics.DirectAnswers.Inc()
		answer := strings.TrimSpace(strings.TrimPrefix(trimmed, DirectAnswerMarker))
		return &PreWriteResult{Direct: true, Answer: answer}, nil
	}
	return &PreWriteResult{Guidance: trimmed}, nil
}

// PostWrite reviews a draft against the research and the prompt,
// returning the problems-only review text.
func (a *ReviewAgent) PostWrite(ctx context.Context, prompt, research, draft string) (string, error) {
	review, err := a.specialist.Execute(ctx, fmt.Sprintf(a.prompts.PostWriteReview, prompt, research, draft))
	if err != nil {
		return "", fmt.Errorf("post-write review: %w", err)
	}
	return strings.TrimSpace(review), nil
}

// ClassifyRetry asks whether the review warrants a rewrite. Only the
// exact literal "RETRY" triggers one; any other response, malformed
// output included, continues to Stop. Classifier errors also continue:
// the loop fails toward stopping, never toward spinning.
func (a *ReviewAgent) ClassifyRetry(ctx context.Context, review string) bool {
	resp, err := a.llm.Complete(ctx, fmt.Sprintf(a.prompts.RetryClassify, review))
	if err != nil {
		a.logger.Warn("Retry classification failed, continuing with current draft", zap.Error(err))
		return false
	}
	return resp == "RETRY"
}
