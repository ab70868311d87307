package workspace

import "errors"

var (
	// ErrNotGitRepo is returned when the project path is not a git repository.
	ErrNotGitRepo = errors.New("project is not a git repository")
	// ErrBranchExists is returned when the derived branch name is taken.
	ErrBranchExists = errors.New("branch already exists")
	// ErrWorkspaceExists is returned when the derived worktree path is taken.
	ErrWorkspaceExists = errors.New("workspace directory already exists")
	// ErrMergeConflict is returned when merging a task branch hits conflicts.
	// The merge is aborted before this is returned.
	ErrMergeConflict = errors.New("merge conflict")
)
