// Package git provides an interface for git operations.
package git

// RepoOperations defines the interface for repository-level queries.
type RepoOperations interface {
	// IsRepo returns true if the runner's path is inside a git repository.
	IsRepo() bool
	// CurrentBranch returns the name of the current branch.
	CurrentBranch() (string, error)
	// HeadCommit returns the full hash of the current HEAD commit.
	HeadCommit() (string, error)
	// HasCommits returns true if the repository has at least one commit.
	HasCommits() bool
}

// BranchOperations defines the interface for git branch operations.
type BranchOperations interface {
	// BranchExists returns true if the branch exists.
	BranchExists(name string) (bool, error)
	// CheckoutBranch switches to the specified branch.
	CheckoutBranch(name string) error
	// DeleteBranch deletes a fully merged branch (git branch -d).
	DeleteBranch(name string) error
	// ForceDeleteBranch deletes the branch regardless of merge state.
	ForceDeleteBranch(name string) error
}

// DiffOperations defines the interface for git diff operations.
type DiffOperations interface {
	// Diff returns the diff between the working tree and the given base ref.
	Diff(base string) (string, error)
	// HasChanges returns true if there are uncommitted changes.
	HasChanges() (bool, error)
}

// MergeOperations defines the interface for git merge operations.
type MergeOperations interface {
	// Merge merges the branch into the current branch without opening an
	// editor. The combined output is returned even when the merge fails so
	// callers can inspect it for conflicts.
	Merge(branch string) (string, error)
	// MergeAbort aborts an in-progress merge.
	MergeAbort() error
}

// WorktreeOperations defines the interface for git worktree operations.
type WorktreeOperations interface {
	// WorktreeAddNewBranch creates a new worktree with a new branch (git worktree add -b).
	WorktreeAddNewBranch(path, branch string) error
	// WorktreeRemove force-removes the worktree at the given path.
	WorktreeRemove(path string) error
	// WorktreeListPorcelain returns the raw porcelain output for parsing.
	WorktreeListPorcelain() (string, error)
	// WorktreePrune removes stale worktree entries.
	WorktreePrune() error
}

// Runner defines the complete interface for git operations.
// Consumers should prefer the focused interfaces when possible.
type Runner interface {
	RepoOperations
	BranchOperations
	DiffOperations
	MergeOperations
	WorktreeOperations
	// Run executes an arbitrary git command with the given arguments.
	Run(args ...string) (string, error)
}
