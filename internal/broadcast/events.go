// Package broadcast fans orchestration events out to interested observers.
package broadcast

import (
	"time"

	"github.com/taskforge/taskforge/pkg/models"
)

// EventType represents the kind of broadcast event.
type EventType string

const (
	// EventTaskUpdated indicates a task record changed.
	EventTaskUpdated EventType = "task_updated"
	// EventTaskDeleted indicates a task was removed.
	EventTaskDeleted EventType = "task_deleted"
	// EventLog carries one line of agent output for a task.
	EventLog EventType = "log"
	// EventExecutionComplete indicates a task's agent process finished.
	EventExecutionComplete EventType = "execution_complete"
	// EventMergeStarted indicates a merge began for a task.
	EventMergeStarted EventType = "merge_started"
	// EventMergeProgress reports an intermediate merge step.
	EventMergeProgress EventType = "merge_progress"
	// EventMergeComplete indicates the merge landed, with its commit hash.
	EventMergeComplete EventType = "merge_complete"
	// EventMergeFailed indicates the merge did not land.
	EventMergeFailed EventType = "merge_failed"
	// EventPlanStatus reports a plan session status change.
	EventPlanStatus EventType = "plan_status"
	// EventPlanQuestions carries newly asked plan questions.
	EventPlanQuestions EventType = "plan_questions"
	// EventPlanSummary carries a plan session's final summary.
	EventPlanSummary EventType = "plan_summary"
	// EventChatChunk carries a streamed piece of an assistant reply.
	EventChatChunk EventType = "chat_chunk"
	// EventChatDone indicates the assistant reply finished streaming.
	EventChatDone EventType = "chat_done"
	// EventPreviewStarted indicates a preview server came up.
	EventPreviewStarted EventType = "preview_started"
	// EventPreviewStopped indicates a preview server went down.
	EventPreviewStopped EventType = "preview_stopped"
)

// Event is a single broadcast message. Only the fields relevant to the
// event type are populated.
type Event struct {
	// Type is the kind of event.
	Type EventType `json:"type"`
	// TaskID is the related task, if applicable.
	TaskID string `json:"task_id,omitempty"`
	// SessionID is the related plan session, if applicable.
	SessionID string `json:"session_id,omitempty"`
	// Task is the updated task record for task events.
	Task *models.Task `json:"task,omitempty"`
	// Content carries log lines, progress text, chat chunks, or summaries.
	Content string `json:"content,omitempty"`
	// Stream names the output stream for log events (stdout/stderr).
	Stream string `json:"stream,omitempty"`
	// Success reports the outcome for execution-complete events.
	Success bool `json:"success,omitempty"`
	// Commit is the merge commit hash for merge-complete events.
	Commit string `json:"commit,omitempty"`
	// Status is the session status for plan events.
	Status models.PlanStatus `json:"status,omitempty"`
	// Questions are the pending questions for plan-questions events.
	Questions []models.PlanQuestion `json:"questions,omitempty"`
	// Port is the listen port for preview events.
	Port int `json:"port,omitempty"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event of the given type stamped with the current time.
func NewEvent(t EventType) Event {
	return Event{Type: t, Timestamp: time.Now()}
}
