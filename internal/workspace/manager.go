// Package workspace allocates and tears down isolated git worktrees for tasks.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/taskforge/taskforge/internal/git"
)

// Workspace describes an allocated branch+worktree pair.
type Workspace struct {
	Path       string    // Absolute path to the worktree directory
	BranchName string    // Branch checked out in the worktree
	TaskID     string    // ID of the owning task
	CreatedAt  time.Time // When the workspace was allocated
}

// Provider defines the interface for workspace management.
type Provider interface {
	// Create allocates a branch and worktree for the task.
	Create(projectPath, taskID, title string) (*Workspace, error)
	// Remove tears down the worktree at the given path. Removing a
	// workspace that is already gone is not an error.
	Remove(projectPath, path string) error
	// MergeBranch merges the task branch into the project's main branch
	// and returns the resulting merge commit hash.
	MergeBranch(projectPath, branch string) (string, error)
	// DeleteBranch deletes a merged task branch. A branch that no longer
	// exists is not an error.
	DeleteBranch(projectPath, branch string) error
	// List returns the tool-managed workspaces of a project.
	List(projectPath string) ([]*Workspace, error)
	// CleanupOrphans removes workspaces whose branch is not in keepBranches.
	CleanupOrphans(projectPath string, keepBranches []string, verbose func(path string)) (int, error)
	// SweepOrphanDirs removes on-disk workspace directories of the project
	// that are not in validPaths and returns the removed paths.
	SweepOrphanDirs(projectPath string, validPaths []string) ([]string, error)
}

// Verify Manager implements Provider at compile time.
var _ Provider = (*Manager)(nil)

// Manager allocates worktrees under a shared base directory, bucketed per
// project by a hash of the repository path.
type Manager struct {
	baseDir   string
	newRunner func(repoPath string) git.Runner
	mu        sync.Mutex
}

// NewManager creates a workspace manager rooted at baseDir.
func NewManager(baseDir string) (*Manager, error) {
	return newManager(baseDir, func(repoPath string) git.Runner {
		return git.NewRunner(repoPath)
	})
}

// NewManagerWithRunner creates a manager with a custom git runner factory (for testing).
func NewManagerWithRunner(baseDir string, newRunner func(string) git.Runner) (*Manager, error) {
	return newManager(baseDir, newRunner)
}

func newManager(baseDir string, newRunner func(string) git.Runner) (*Manager, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".local", "share", "taskforge", "worktrees")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create worktree base directory: %w", err)
	}

	return &Manager{baseDir: baseDir, newRunner: newRunner}, nil
}

// BaseDir returns the base directory where worktrees are created.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// ProjectDir returns the directory holding a project's worktrees.
func (m *Manager) ProjectDir(projectPath string) string {
	return filepath.Join(m.baseDir, projectHash(projectPath))
}

// Create allocates a branch and worktree for the task. The branch is named
// tf/<slug>-<id8> and the worktree lives under the project's bucket.
func (m *Manager) Create(projectPath, taskID, title string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.newRunner(projectPath)
	if !g.IsRepo() {
		return nil, ErrNotGitRepo
	}

	branch := BranchName(title, taskID)
	exists, err := g.BranchExists(branch)
	if err != nil {
		return nil, fmt.Errorf("check branch: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrBranchExists, branch)
	}

	path := filepath.Join(m.ProjectDir(projectPath), DirName(title, taskID))
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceExists, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create project worktree directory: %w", err)
	}

	if err := g.WorktreeAddNewBranch(path, branch); err != nil {
		return nil, fmt.Errorf("create worktree: %w", err)
	}

	return &Workspace{
		Path:       path,
		BranchName: branch,
		TaskID:     taskID,
		CreatedAt:  time.Now(),
	}, nil
}

// Remove tears down the worktree at the given path. If git has lost track
// of the worktree the directory is removed directly, and stale references
// are pruned either way.
func (m *Manager) Remove(projectPath, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.newRunner(projectPath)
	if err := g.WorktreeRemove(path); err != nil {
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return fmt.Errorf("remove worktree: %w", err)
		}
	}

	// Clear any dangling administrative entries.
	_ = g.WorktreePrune()
	return nil
}

// MergeBranch merges the task branch into the project's default branch and
// returns the resulting commit hash. On conflict the merge is aborted and
// ErrMergeConflict is returned.
func (m *Manager) MergeBranch(projectPath, branch string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.newRunner(projectPath)
	if err := checkoutDefaultBranch(g); err != nil {
		return "", err
	}

	out, err := g.Merge(branch)
	if err != nil {
		if strings.Contains(out, "CONFLICT") {
			_ = g.MergeAbort()
			return "", fmt.Errorf("%w: %s into default branch", ErrMergeConflict, branch)
		}
		return "", err
	}

	commit, err := g.HeadCommit()
	if err != nil {
		return "", fmt.Errorf("resolve merge commit: %w", err)
	}
	return commit, nil
}

// DeleteBranch deletes a merged task branch. A branch that no longer
// exists is treated as already deleted.
func (m *Manager) DeleteBranch(projectPath, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.newRunner(projectPath)
	exists, err := g.BranchExists(branch)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return g.DeleteBranch(branch)
}

// checkoutDefaultBranch switches the project to main, falling back to master.
func checkoutDefaultBranch(g git.Runner) error {
	if err := g.CheckoutBranch("main"); err == nil {
		return nil
	}
	if err := g.CheckoutBranch("master"); err != nil {
		return fmt.Errorf("checkout default branch: %w", err)
	}
	return nil
}

// List returns the tool-managed workspaces of a project, identified by the
// branch prefix.
func (m *Manager) List(projectPath string) ([]*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked(m.newRunner(projectPath))
}

func (m *Manager) listLocked(g git.Runner) ([]*Workspace, error) {
	output, err := g.WorktreeListPorcelain()
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}

	var all []*Workspace
	var current *Workspace
	for _, line := range strings.Split(output, "\n") {
		switch {
		case line == "":
			if current != nil {
				all = append(all, current)
				current = nil
			}
		case strings.HasPrefix(line, "worktree "):
			current = &Workspace{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch ") && current != nil:
			ref := strings.TrimPrefix(line, "branch ")
			current.BranchName = strings.TrimPrefix(ref, "refs/heads/")
		}
	}
	if current != nil {
		all = append(all, current)
	}

	var managed []*Workspace
	for _, ws := range all {
		if strings.HasPrefix(ws.BranchName, BranchPrefix) {
			managed = append(managed, ws)
		}
	}
	return managed, nil
}

// CleanupOrphans removes tool-managed workspaces whose branch is not in
// keepBranches and returns the count of removed workspaces. The branches
// themselves are force-deleted since their work was never merged.
func (m *Manager) CleanupOrphans(projectPath string, keepBranches []string, verbose func(path string)) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.newRunner(projectPath)
	workspaces, err := m.listLocked(g)
	if err != nil {
		return 0, err
	}

	keep := make(map[string]bool, len(keepBranches))
	for _, b := range keepBranches {
		keep[b] = true
	}

	removed := 0
	for _, ws := range workspaces {
		if keep[ws.BranchName] {
			continue
		}

		if err := g.WorktreeRemove(ws.Path); err != nil {
			if rmErr := os.RemoveAll(ws.Path); rmErr != nil {
				continue
			}
		}
		_ = g.ForceDeleteBranch(ws.BranchName)

		if verbose != nil {
			verbose(ws.Path)
		}
		removed++
	}

	_ = g.WorktreePrune()
	return removed, nil
}

// SweepOrphanDirs removes on-disk workspace directories of the project that
// are not in validPaths and returns the removed paths. This reconciles state
// after a crash that left a workspace allocated with no live execution.
func (m *Manager) SweepOrphanDirs(projectPath string, validPaths []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	valid := make(map[string]bool, len(validPaths))
	for _, p := range validPaths {
		valid[p] = true
	}

	projectDir := m.ProjectDir(projectPath)
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read project worktree directory: %w", err)
	}

	g := m.newRunner(projectPath)
	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(projectDir, entry.Name())
		if valid[path] {
			continue
		}

		if err := g.WorktreeRemove(path); err != nil {
			if rmErr := os.RemoveAll(path); rmErr != nil {
				continue
			}
		}
		removed = append(removed, path)
	}

	_ = g.WorktreePrune()
	return removed, nil
}
