// Package registry binds workflows and activities to a Temporal worker
// under their registered names.
package registry

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/activities"
	"github.com/parchmentlabs/parchment/internal/constants"
	"github.com/parchmentlabs/parchment/internal/workflows"
)

// Register attaches the chat workflow and every activity to the worker.
// Names come from the constants package so execution sites cannot drift
// from registration.
func Register(w worker.Worker, acts *activities.Activities, logger *zap.Logger) {
	w.RegisterWorkflowWithOptions(workflows.ChatWorkflow, workflow.RegisterOptions{
		Name: constants.ChatWorkflowName,
	})

	w.RegisterActivityWithOptions(acts.RunResearch, activity.RegisterOptions{Name: constants.RunResearchActivity})
	w.RegisterActivityWithOptions(acts.ReviewResearch, activity.RegisterOptions{Name: constants.ReviewResearchActivity})
	w.RegisterActivityWithOptions(acts.WriteDraft, activity.RegisterOptions{Name: constants.WriteDraftActivity})
	w.RegisterActivityWithOptions(acts.ReviewDraft, activity.RegisterOptions{Name: constants.ReviewDraftActivity})
	w.RegisterActivityWithOptions(acts.ClassifyRetry, activity.RegisterOptions{Name: constants.ClassifyRetryActivity})
	w.RegisterActivityWithOptions(acts.UpdateSessionResult, activity.RegisterOptions{Name: constants.UpdateSessionResultActivity})
	w.RegisterActivityWithOptions(acts.RecordChatRun, activity.RegisterOptions{Name: constants.RecordChatRunActivity})
	w.RegisterActivityWithOptions(acts.PublishEvent, activity.RegisterOptions{Name: constants.PublishEventActivity})

	logger.Info("Registered chat workflow and activities",
		zap.String("task_queue", constants.TaskQueue))
}
