// Package constants holds the names shared between workflow code,
// activity registration, and callers. Registering and executing by
// constant keeps the two sides from drifting.
package constants

// TaskQueue is the Temporal task queue all chat workflows run on.
const TaskQueue = "parchment-chat"

// ChatWorkflowName is the registered name of the chat workflow.
const ChatWorkflowName = "ChatWorkflow"

// Activity names.
const (
	RunResearchActivity         = "RunResearch"
	ReviewResearchActivity      = "ReviewResearch"
	WriteDraftActivity          = "WriteDraft"
	ReviewDraftActivity         = "ReviewDraft"
	ClassifyRetryActivity       = "ClassifyRetry"
	UpdateSessionResultActivity = "UpdateSessionResult"
	RecordChatRunActivity       = "RecordChatRun"
	PublishEventActivity        = "PublishEvent"
)
