// Package activities wraps the agent chain, session store, run log, and
// event hub as Temporal activities. Each method is deterministic from
// the workflow's point of view; all side effects live here.
package activities

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/agents"
	"github.com/parchmentlabs/parchment/internal/db"
	"github.com/parchmentlabs/parchment/internal/metrics"
	"github.com/parchmentlabs/parchment/internal/models"
	"github.com/parchmentlabs/parchment/internal/session"
	"github.com/parchmentlabs/parchment/internal/streaming"
)

// Activities carries the dependencies of every chat activity.
type Activities struct {
	query    *agents.QueryAgent
	reviewer *agents.ReviewAgent
	writer   *agents.WriteAgent
	sessions *session.Manager
	runs     *db.RunWriter
	hub      *streaming.Hub
	logger   *zap.Logger
}

func New(
	query *agents.QueryAgent,
	reviewer *agents.ReviewAgent,
	writer *agents.WriteAgent,
	sessions *session.Manager,
	runs *db.RunWriter,
	hub *streaming.Hub,
	logger *zap.Logger,
) *Activities {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Activities{
		query:    query,
		reviewer: reviewer,
		writer:   writer,
		sessions: sessions,
		runs:     runs,
		hub:      hub,
		logger:   logger,
	}
}

func observeStep(step string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.AgentSteps.WithLabelValues(step, status).Inc()
	metrics.AgentStepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
}

// ResearchInput asks for a research brief for one prompt.
type ResearchInput struct {
	Prompt   string           `json:"prompt"`
	IndexIDs []string         `json:"index_ids,omitempty"`
	History  []models.Message `json:"history,omitempty"`
}

// ResearchResult mirrors the query agent's outcome.
type ResearchResult struct {
	Answered bool   `json:"answered"`
	Answer   string `json:"answer,omitempty"`
	Brief    string `json:"brief,omitempty"`
	Source   string `json:"source"`
}

// RunResearch executes the research step: history check, index
// retrieval, web fallback.
func (a *Activities) RunResearch(ctx context.Context, in ResearchInput) (ResearchResult, error) {
	start := time.Now()
	out, err := a.query.Run(ctx, in.Prompt, in.IndexIDs, in.History)
	observeStep("research", start, err)
	if err != nil {
		return ResearchResult{}, err
	}
	return ResearchResult{
		Answered: out.Answered,
		Answer:   out.Answer,
		Brief:    out.Brief,
		Source:   out.Source,
	}, nil
}

// ReviewResearchInput reviews a brief before drafting.
type ReviewResearchInput struct {
	Prompt   string `json:"prompt"`
	Research string `json:"research"`
}

// ReviewResearchResult carries either a direct answer or guidance for
// the writer.
type ReviewResearchResult struct {
	Direct   bool   `json:"direct"`
	Answer   string `json:"answer,omitempty"`
	Guidance string `json:"guidance,omitempty"`
}

func (a *Activities) ReviewResearch(ctx context.Context, in ReviewResearchInput) (ReviewResearchResult, error) {
	start := time.Now()
	res, err := a.reviewer.PreWrite(ctx, in.Prompt, in.Research)
	observeStep("review_research", start, err)
	if err != nil {
		return ReviewResearchResult{}, err
	}
	return ReviewResearchResult{Direct: res.Direct, Answer: res.Answer, Guidance: res.Guidance}, nil
}

// WriteDraftInput drafts or redrafts an answer.
type WriteDraftInput struct {
	Prompt   string           `json:"prompt"`
	Research string           `json:"research"`
	Guidance string           `json:"guidance,omitempty"`
	Feedback string           `json:"feedback,omitempty"`
	History  []models.Message `json:"history,omitempty"`
}

type WriteDraftResult struct {
	Draft string `json:"draft"`
}

func (a *Activities) WriteDraft(ctx context.Context, in WriteDraftInput) (WriteDraftResult, error) {
	start := time.Now()
	draft, err := a.writer.Write(ctx, agents.WriteRequest{
		Prompt:   in.Prompt,
		Research: in.Research,
		Guidance: in.Guidance,
		Feedback: in.Feedback,
		History:  in.History,
	})
	observeStep("write", start, err)
	if err != nil {
		return WriteDraftResult{}, err
	}
	return WriteDraftResult{Draft: draft}, nil
}

// ReviewDraftInput reviews a drafted answer.
type ReviewDraftInput struct {
	Prompt   string `json:"prompt"`
	Research string `json:"research"`
	Draft    string `json:"draft"`
}

type ReviewDraftResult struct {
	Review string `json:"review"`
}

func (a *Activities) ReviewDraft(ctx context.Context, in ReviewDraftInput) (ReviewDraftResult, error) {
	start := time.Now()
	review, err := a.reviewer.PostWrite(ctx, in.Prompt, in.Research, in.Draft)
	observeStep("review_draft", start, err)
	if err != nil {
		return ReviewDraftResult{}, err
	}
	return ReviewDraftResult{Review: review}, nil
}

// ClassifyRetryInput asks whether a review demands a rewrite.
type ClassifyRetryInput struct {
	Review string `json:"review"`
}

type ClassifyRetryResult struct {
	Retry bool `json:"retry"`
}

// ClassifyRetry never returns an error: classification failures count
// as CONTINUE inside the review agent.
func (a *Activities) ClassifyRetry(ctx context.Context, in ClassifyRetryInput) (ClassifyRetryResult, error) {
	start := time.Now()
	retry := a.reviewer.ClassifyRetry(ctx, in.Review)
	observeStep("classify_retry", start, nil)
	return ClassifyRetryResult{Retry: retry}, nil
}

// SessionUpdateInput appends the finished exchange to the session.
type SessionUpdateInput struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
	Result    string `json:"result"`
}

type SessionUpdateResult struct {
	Updated bool `json:"updated"`
}

func (a *Activities) UpdateSessionResult(ctx context.Context, in SessionUpdateInput) (SessionUpdateResult, error) {
	if a.sessions == nil || in.SessionID == "" {
		return SessionUpdateResult{}, nil
	}
	if err := a.sessions.AppendExchange(ctx, in.SessionID, in.Prompt, in.Result); err != nil {
		a.logger.Warn("Session update failed",
			zap.String("session_id", in.SessionID), zap.Error(err))
		return SessionUpdateResult{}, err
	}
	return SessionUpdateResult{Updated: true}, nil
}

// RecordChatRunInput logs one finished run.
type RecordChatRunInput struct {
	RunID        string    `json:"run_id"`
	SessionID    string    `json:"session_id"`
	Prompt       string    `json:"prompt"`
	Result       string    `json:"result"`
	Status       string    `json:"status"`
	Source       string    `json:"source"`
	RewriteCount int       `json:"rewrite_count"`
	StartedAt    time.Time `json:"started_at"`
}

func (a *Activities) RecordChatRun(ctx context.Context, in RecordChatRunInput) error {
	metrics.WorkflowsCompleted.WithLabelValues(in.Status).Inc()
	metrics.WorkflowDuration.Observe(time.Since(in.StartedAt).Seconds())
	metrics.RewriteCycles.Observe(float64(in.RewriteCount))
	if a.runs == nil {
		return nil
	}
	return a.runs.Record(ctx, db.ChatRun{
		RunID:        in.RunID,
		SessionID:    in.SessionID,
		Prompt:       in.Prompt,
		Result:       in.Result,
		Status:       in.Status,
		Source:       in.Source,
		RewriteCount: in.RewriteCount,
		Duration:     time.Since(in.StartedAt),
		StartedAt:    in.StartedAt,
	})
}

// PublishEventInput surfaces a workflow step to live subscribers.
type PublishEventInput struct {
	RunID  string `json:"run_id"`
	Type   string `json:"type"`
	Step   string `json:"step,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (a *Activities) PublishEvent(_ context.Context, in PublishEventInput) error {
	if a.hub == nil {
		return nil
	}
	a.hub.Publish(in.RunID, streaming.Event{
		Type:   in.Type,
		Step:   in.Step,
		Detail: in.Detail,
	})
	return nil
}
