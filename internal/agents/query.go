package agents

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/llm"
	"github.com/parchmentlabs/parchment/internal/metadata"
	"github.com/parchmentlabs/parchment/internal/metrics"
	"github.com/parchmentlabs/parchment/internal/models"
	"github.com/parchmentlabs/parchment/internal/ranking"
	"github.com/parchmentlabs/parchment/internal/retrieval"
	"github.com/parchmentlabs/parchment/internal/websearch"
)

// Research sources, recorded so downstream steps and run logs can tell
// where a brief came from.
const (
	SourceHistory = "history"
	SourceIndex   = "index"
	SourceWeb     = "web"
	SourceError   = "error"
)

// QueryOutcome is the research step's result. When Answered is true the
// whole workflow is done: the history already contained the answer.
type QueryOutcome struct {
	Answered bool   `json:"answered"`
	Answer   string `json:"answer,omitempty"`
	Brief    string `json:"brief,omitempty"`
	Source   string `json:"source"`
}

// Bundler is the index-retrieval dependency of the query agent.
type Bundler interface {
	Retrieve(ctx context.Context, query string, indexIDs []string) (*retrieval.Bundle, error)
}

// QueryAgent gathers research for a prompt. Its tool order is fixed:
// history check, then metadata ranking plus index retrieval when indexes
// were supplied, then web search as the last resort.
type QueryAgent struct {
	checker   *HistoryChecker
	ranker    *ranking.Ranker
	meta      metadata.Store
	retriever Bundler
	web       websearch.Searcher
	llm       llm.Client
	prompts   Prompts
	logger    *zap.Logger
}

func NewQueryAgent(
	checker *HistoryChecker,
	ranker *ranking.Ranker,
	meta metadata.Store,
	retriever Bundler,
	web websearch.Searcher,
	client llm.Client,
	prompts Prompts,
	logger *zap.Logger,
) *QueryAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryAgent{
		checker:   checker,
		ranker:    ranker,
		meta:      meta,
		retriever: retriever,
		web:       web,
		llm:       client,
		prompts:   prompts,
		logger:    logger,
	}
}

// Run executes the research policy for one prompt.
func (a *QueryAgent) Run(ctx context.Context, prompt string, indexIDs []string, history []models.Message) (*QueryOutcome, error) {
	if suff := a.checker.NeedsSearch(ctx, prompt, history); !suff.NeedsSearch {
		answer, err := a.answerFromHistory(ctx, prompt, history)
		if err != nil {
			return nil, err
		}
		return &QueryOutcome{Answered: true, Answer: answer, Source: SourceHistory}, nil
	}

	if len(indexIDs) > 0 {
		if outcome := a.searchIndexes(ctx, prompt, indexIDs); outcome != nil {
			return outcome, nil
		}
	}

	text, err := a.web.Search(ctx, prompt)
	if err != nil {
		// the error payload becomes the brief; downstream steps still run
		a.logger.Warn("Web search failed", zap.Error(err))
		return &QueryOutcome{
			Brief:  fmt.Sprintf("Research unavailable: %s", err.Error()),
			Source: SourceError,
		}, nil
	}
	metrics.WebSearchFallbacks.Inc()
	return &QueryOutcome{Brief: text, Source: SourceWeb}, nil
}

// searchIndexes runs ranking and retrieval over the supplied indexes.
// It returns nil when nothing relevant was found so the caller falls
// through to web search.
func (a *QueryAgent) searchIndexes(ctx context.Context, prompt string, indexIDs []string) *QueryOutcome {
	candidates := make([]*models.ContentIndex, 0, len(indexIDs))
	for _, id := range indexIDs {
		idx, err := a.meta.Get(ctx, id)
		if err != nil {
			// one missing record never aborts the ranking
			a.logger.Debug("Skipping index without metadata",
				zap.String("index_id", id), zap.Error(err))
			continue
		}
		candidates = append(candidates, idx)
	}

	matches := a.ranker.Rank(prompt, candidates)
	if len(matches) == 0 {
		return nil
	}
	matchedIDs := make([]string, len(matches))
	for i, m := range matches {
		matchedIDs[i] = m.IndexID
	}

	bundle, err := a.retriever.Retrieve(ctx, prompt, matchedIDs)
	if err != nil {
		if !errors.Is(err, retrieval.ErrNoContext) {
			a.logger.Warn("Index retrieval failed", zap.Error(err))
		}
		return nil
	}
	return &QueryOutcome{Brief: retrieval.FormatBrief(bundle), Source: SourceIndex}
}

func (a *QueryAgent) answerFromHistory(ctx context.Context, prompt string, history []models.Message) (string, error) {
	msgs := make([]models.Message, 0, len(history)+2)
	msgs = append(msgs, models.Message{Role: "system", Content: a.prompts.HistoryAnswer})
	msgs = append(msgs, history...)
	msgs = append(msgs, models.Message{Role: "user", Content: prompt})
	answer, err := a.llm.Chat(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("answer from history: %w", err)
	}
	return answer, nil
}
