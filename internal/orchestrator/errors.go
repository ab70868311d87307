package orchestrator

import "errors"

// ErrAlreadyRunning is returned when start is called for a task that
// already has a live execution.
var ErrAlreadyRunning = errors.New("task is already running")

// ErrNotRunning is returned when cancel is called for a task with no
// live execution.
var ErrNotRunning = errors.New("task is not running")

// ErrInvalidState is returned when an operation requires a task status
// the task is not in.
var ErrInvalidState = errors.New("task is not in the required state")

// ErrNoBranch is returned when a merge is requested for a task with no
// recorded branch.
var ErrNoBranch = errors.New("task has no branch")
