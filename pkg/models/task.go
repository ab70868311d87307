package models

import "time"

// TaskStatus represents the current state of a task on the board.
type TaskStatus string

const (
	// TaskStatusTodo indicates the task has not started.
	TaskStatusTodo TaskStatus = "todo"
	// TaskStatusInProgress indicates an agent is working on the task.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusReview indicates the agent finished and the work awaits review.
	TaskStatusReview TaskStatus = "review"
	// TaskStatusDone indicates the task's branch has been merged.
	TaskStatusDone TaskStatus = "done"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusReview, TaskStatusDone:
		return true
	default:
		return false
	}
}

// Task represents a unit of work driven by an agent execution.
//
// BranchName and WorktreePath are set together when a workspace is
// allocated for the task and cleared together when it is merged away.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// ErrorMessage holds the failure detail when an execution failed.
	ErrorMessage string `json:"error_message,omitempty"`
	// BranchName is the isolated branch allocated for this task, if any.
	BranchName string `json:"branch_name,omitempty"`
	// WorktreePath is the workspace directory allocated for this task, if any.
	WorktreePath string `json:"worktree_path,omitempty"`
	// ProjectPath is the repository the task belongs to.
	ProjectPath string `json:"project_path,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// Prompt returns the text handed to the agent: the description, or the
// title when no description was given.
func (t *Task) Prompt() string {
	if t.Description != "" {
		return t.Description
	}
	return t.Title
}

// HasWorkspace returns true if the task has an allocated branch+worktree pair.
func (t *Task) HasWorkspace() bool {
	return t.BranchName != "" && t.WorktreePath != ""
}

// CreateTask carries the fields for creating a new task record.
type CreateTask struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ProjectPath string `json:"project_path"`
}

// UpdateTask carries a partial update. Nil fields are left unchanged.
type UpdateTask struct {
	Title        *string     `json:"title,omitempty"`
	Description  *string     `json:"description,omitempty"`
	Status       *TaskStatus `json:"status,omitempty"`
	ErrorMessage *string     `json:"error_message,omitempty"`
	BranchName   *string     `json:"branch_name,omitempty"`
	WorktreePath *string     `json:"worktree_path,omitempty"`
}
