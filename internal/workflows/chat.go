// Package workflows holds the Temporal chat workflow: an explicit state
// machine over the research, review, and write activities.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/parchmentlabs/parchment/internal/activities"
	"github.com/parchmentlabs/parchment/internal/constants"
	"github.com/parchmentlabs/parchment/internal/streaming"
)

// chatState is a node of the run's state machine. Transitions only move
// forward: research feeds writing, writing feeds review, review either
// loops back to writing or stops. There is no path back to research, so
// the research brief for a run is fixed once gathered.
type chatState int

const (
	stateResearch chatState = iota
	stateReviewResearch
	stateWrite
	stateReviewDraft
	stateDone
)

func (s chatState) String() string {
	switch s {
	case stateResearch:
		return "research"
	case stateReviewResearch:
		return "review_research"
	case stateWrite:
		return "write"
	case stateReviewDraft:
		return "review_draft"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// maxRewrites bounds the review loop. One initial draft plus two
// rewrites means at most three write executions per run.
const maxRewrites = 2

// ChatWorkflow answers one prompt through the agent chain.
func ChatWorkflow(ctx workflow.Context, input ChatInput) (ChatResult, error) {
	logger := workflow.GetLogger(ctx)
	runID := workflow.GetInfo(ctx).WorkflowExecution.ID
	startedAt := workflow.Now(ctx)
	logger.Info("Starting chat run",
		"run_id", runID,
		"session_id", input.SessionID,
		"indexes", len(input.IndexIDs),
	)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	})

	emit(ctx, runID, streaming.EventRunStarted, "", "")

	var (
		state        = stateResearch
		research     activities.ResearchResult
		guidance     string
		feedback     string
		draft        string
		review       string
		rewriteCount int
		result       ChatResult
	)

	for state != stateDone {
		step := state.String()
		emit(ctx, runID, streaming.EventStepStarted, step, "")

		switch state {
		case stateResearch:
			err := workflow.ExecuteActivity(ctx, constants.RunResearchActivity, activities.ResearchInput{
				Prompt:   input.Prompt,
				IndexIDs: input.IndexIDs,
				History:  input.History,
			}).Get(ctx, &research)
			if err != nil {
				result = errorResult("research failed: " + err.Error())
				state = stateDone
				break
			}
			if research.Answered {
				// the history already held the answer
				result = ChatResult{Status: StatusCompleted, Result: research.Answer, Source: research.Source}
				state = stateDone
				break
			}
			state = stateReviewResearch

		case stateReviewResearch:
			var reviewed activities.ReviewResearchResult
			err := workflow.ExecuteActivity(ctx, constants.ReviewResearchActivity, activities.ReviewResearchInput{
				Prompt:   input.Prompt,
				Research: research.Brief,
			}).Get(ctx, &reviewed)
			if err != nil {
				result = errorResult("research review failed: " + err.Error())
				state = stateDone
				break
			}
			if reviewed.Direct {
				result = ChatResult{Status: StatusCompleted, Result: reviewed.Answer, Source: research.Source}
				state = stateDone
				break
			}
			guidance = reviewed.Guidance
			state = stateWrite

		case stateWrite:
			var written activities.WriteDraftResult
			err := workflow.ExecuteActivity(ctx, constants.WriteDraftActivity, activities.WriteDraftInput{
				Prompt:   input.Prompt,
				Research: research.Brief,
				Guidance: guidance,
				Feedback: feedback,
				History:  input.History,
			}).Get(ctx, &written)
			if err != nil {
				result = errorResult("draft failed: " + err.Error())
				state = stateDone
				break
			}
			draft = written.Draft
			state = stateReviewDraft

		case stateReviewDraft:
			var reviewed activities.ReviewDraftResult
			err := workflow.ExecuteActivity(ctx, constants.ReviewDraftActivity, activities.ReviewDraftInput{
				Prompt:   input.Prompt,
				Research: research.Brief,
				Draft:    draft,
			}).Get(ctx, &reviewed)
			if err != nil {
				// the draft exists; a failed review never discards it
				logger.Warn("Draft review failed, keeping draft", "error", err)
				result = ChatResult{Status: StatusCompleted, Result: draft, Source: research.Source, RewriteCount: rewriteCount}
				state = stateDone
				break
			}
			review = reviewed.Review

			if rewriteCount >= maxRewrites {
				// budget exhausted; the classifier is not consulted
				result = ChatResult{Status: StatusCompleted, Result: draft, Source: research.Source, RewriteCount: rewriteCount}
				state = stateDone
				break
			}

			var classified activities.ClassifyRetryResult
			err = workflow.ExecuteActivity(ctx, constants.ClassifyRetryActivity, activities.ClassifyRetryInput{
				Review: review,
			}).Get(ctx, &classified)
			if err != nil || !classified.Retry {
				// classifier failures stop with the current draft
				result = ChatResult{Status: StatusCompleted, Result: draft, Source: research.Source, RewriteCount: rewriteCount}
				state = stateDone
				break
			}

			rewriteCount++
			emit(ctx, runID, streaming.EventRewrite, step, review)
			feedback = review
			guidance = ""
			state = stateWrite
		}

		emit(ctx, runID, streaming.EventStepFinished, step, "")
	}

	finalize(ctx, input, result, runID, startedAt)
	emit(ctx, runID, streaming.EventRunFinished, "", result.Status)

	logger.Info("Chat run finished",
		"run_id", runID,
		"status", result.Status,
		"source", result.Source,
		"rewrites", result.RewriteCount,
	)
	return result, nil
}

func errorResult(message string) ChatResult {
	return ChatResult{Status: StatusError, Message: message}
}

// finalize updates the session and records the run. Both happen on a
// disconnected context so cancellation of the run cannot lose the
// bookkeeping, and both are best effort.
func finalize(ctx workflow.Context, input ChatInput, result ChatResult, runID string, startedAt time.Time) {
	logger := workflow.GetLogger(ctx)
	detached, _ := workflow.NewDisconnectedContext(ctx)
	detached = workflow.WithActivityOptions(detached, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})

	if input.SessionID != "" && result.Status == StatusCompleted {
		var updated activities.SessionUpdateResult
		if err := workflow.ExecuteActivity(detached, constants.UpdateSessionResultActivity, activities.SessionUpdateInput{
			SessionID: input.SessionID,
			Prompt:    input.Prompt,
			Result:    result.Result,
		}).Get(detached, &updated); err != nil {
			logger.Warn("Session update failed", "session_id", input.SessionID, "error", err)
		}
	}

	if err := workflow.ExecuteActivity(detached, constants.RecordChatRunActivity, activities.RecordChatRunInput{
		RunID:        runID,
		SessionID:    input.SessionID,
		Prompt:       input.Prompt,
		Result:       result.Result,
		Status:       result.Status,
		Source:       result.Source,
		RewriteCount: result.RewriteCount,
		StartedAt:    startedAt,
	}).Get(detached, nil); err != nil {
		logger.Warn("Run record failed", "run_id", runID, "error", err)
	}
}

// emit publishes a step event without waiting on the result.
func emit(ctx workflow.Context, runID, eventType, step, detail string) {
	opts := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	ectx := workflow.WithActivityOptions(ctx, opts)
	workflow.ExecuteActivity(ectx, constants.PublishEventActivity, activities.PublishEventInput{
		RunID:  runID,
		Type:   eventType,
		Step:   step,
		Detail: detail,
	})
}
