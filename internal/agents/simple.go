package agents

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/llm"
	"github.com/parchmentlabs/parchment/internal/models"
	"github.com/parchmentlabs/parchment/internal/retrieval"
)

// SimpleChat answers in a single LLM call with retrieved context, for
// the non-agent chat endpoint where review cycles are not worth their
// latency.
type SimpleChat struct {
	retriever Bundler
	llm       llm.Client
	prompts   Prompts
	logger    *zap.Logger
}

func NewSimpleChat(retriever Bundler, client llm.Client, prompts Prompts, logger *zap.Logger) *SimpleChat {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimpleChat{retriever: retriever, llm: client, prompts: prompts, logger: logger}
}

// Answer retrieves context from the given indexes (best effort) and asks
// the LLM once. Retrieval failures degrade to an uncontextualized answer.
func (s *SimpleChat) Answer(ctx context.Context, prompt string, indexIDs []string, history []models.Message) (string, error) {
	reference := "(no reference material available)"
	if len(indexIDs) > 0 {
		bundle, err := s.retriever.Retrieve(ctx, prompt, indexIDs)
		switch {
		case err == nil:
			reference = retrieval.FormatBrief(bundle)
		case errors.Is(err, retrieval.ErrNoContext):
			// fine, answer without it
		default:
			s.logger.Warn("Context retrieval failed for simple chat", zap.Error(err))
		}
	}

	msgs := make([]models.Message, 0, len(history)+2)
	msgs = append(msgs, models.Message{Role: "system", Content: fmt.Sprintf(s.prompts.SimpleChat, reference)})
	msgs = append(msgs, history...)
	msgs = append(msgs, models.Message{Role: "user", Content: prompt})

	answer, err := s.llm.Chat(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("simple chat: %w", err)
	}
	return answer, nil
}

// Restructure reorganizes existing text per the given instruction without
// adding new content.
func (s *SimpleChat) Restructure(ctx context.Context, instruction, text string) (string, error) {
	return Restructure(ctx, s.llm, s.prompts, instruction, text, s.logger)
}
