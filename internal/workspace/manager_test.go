package workspace

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// initTestRepo creates a git repository with one commit on main.
func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	runGit(t, dir, "init", "-b", "main")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test User")

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial commit")

	return dir
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestCreateWorkspace(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t)

	ws, err := m.Create(repo, "a1b2c3d4-0000", "Fix login bug")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if ws.BranchName != "tf/fix-login-bug-a1b2c3d4" {
		t.Errorf("unexpected branch name %q", ws.BranchName)
	}
	if !strings.HasPrefix(ws.Path, m.BaseDir()) {
		t.Errorf("worktree should live under the base dir, got %q", ws.Path)
	}
	if _, err := os.Stat(filepath.Join(ws.Path, "README.md")); err != nil {
		t.Errorf("worktree should contain a checkout: %v", err)
	}
}

func TestCreateWorkspaceNotARepo(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Create(t.TempDir(), "id", "title"); !errors.Is(err, ErrNotGitRepo) {
		t.Errorf("expected ErrNotGitRepo, got %v", err)
	}
}

func TestCreateWorkspaceBranchCollision(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t)

	if _, err := m.Create(repo, "a1b2c3d4-0000", "Fix login bug"); err != nil {
		t.Fatal(err)
	}
	// Same title and ID prefix derives the same branch.
	if _, err := m.Create(repo, "a1b2c3d4-1111", "Fix login bug"); !errors.Is(err, ErrBranchExists) {
		t.Errorf("expected ErrBranchExists, got %v", err)
	}
}

func TestRemoveWorkspace(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t)

	ws, err := m.Create(repo, "a1b2c3d4-0000", "Remove me")
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Remove(repo, ws.Path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(ws.Path); !os.IsNotExist(err) {
		t.Error("worktree directory should be gone")
	}

	// Removing again is a no-op.
	if err := m.Remove(repo, ws.Path); err != nil {
		t.Errorf("second Remove should succeed: %v", err)
	}
}

func TestMergeBranch(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t)

	ws, err := m.Create(repo, "a1b2c3d4-0000", "Add feature")
	if err != nil {
		t.Fatal(err)
	}

	// Commit work inside the worktree.
	if err := os.WriteFile(filepath.Join(ws.Path, "feature.txt"), []byte("done\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, ws.Path, "add", ".")
	runGit(t, ws.Path, "commit", "-m", "implement feature")

	commit, err := m.MergeBranch(repo, ws.BranchName)
	if err != nil {
		t.Fatalf("MergeBranch: %v", err)
	}
	if len(commit) != 40 {
		t.Errorf("expected merge commit hash, got %q", commit)
	}
	if _, err := os.Stat(filepath.Join(repo, "feature.txt")); err != nil {
		t.Errorf("merged file should exist on main: %v", err)
	}

	// The branch is fully merged, so the safe delete succeeds.
	if err := m.Remove(repo, ws.Path); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteBranch(repo, ws.BranchName); err != nil {
		t.Errorf("DeleteBranch: %v", err)
	}
	// Already-deleted branches are fine.
	if err := m.DeleteBranch(repo, ws.BranchName); err != nil {
		t.Errorf("DeleteBranch of missing branch should succeed: %v", err)
	}
}

func TestMergeBranchConflict(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t)

	ws, err := m.Create(repo, "a1b2c3d4-0000", "Conflicting change")
	if err != nil {
		t.Fatal(err)
	}

	// Both main and the task branch edit the same line.
	if err := os.WriteFile(filepath.Join(ws.Path, "README.md"), []byte("# task side\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, ws.Path, "add", ".")
	runGit(t, ws.Path, "commit", "-m", "task edit")

	if err := os.WriteFile(filepath.Join(repo, "README.md"), []byte("# main side\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, repo, "add", ".")
	runGit(t, repo, "commit", "-m", "main edit")

	if _, err := m.MergeBranch(repo, ws.BranchName); !errors.Is(err, ErrMergeConflict) {
		t.Fatalf("expected ErrMergeConflict, got %v", err)
	}

	// The merge was aborted, leaving main clean.
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = repo
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatal(err)
	}
	if len(strings.TrimSpace(string(out))) != 0 {
		t.Errorf("repo should be clean after aborted merge, got:\n%s", out)
	}
}

func TestListWorkspaces(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t)

	if _, err := m.Create(repo, "11111111-0000", "First task"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create(repo, "22222222-0000", "Second task"); err != nil {
		t.Fatal(err)
	}
	// A user-created worktree outside the tf/ namespace is ignored.
	runGit(t, repo, "worktree", "add", filepath.Join(t.TempDir(), "user-wt"), "-b", "user-branch")

	workspaces, err := m.List(repo)
	if err != nil {
		t.Fatal(err)
	}
	if len(workspaces) != 2 {
		t.Fatalf("expected 2 managed workspaces, got %d", len(workspaces))
	}
	for _, ws := range workspaces {
		if !strings.HasPrefix(ws.BranchName, BranchPrefix) {
			t.Errorf("listed workspace has wrong prefix: %q", ws.BranchName)
		}
	}
}

func TestCleanupOrphans(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t)

	kept, err := m.Create(repo, "11111111-0000", "Keep me")
	if err != nil {
		t.Fatal(err)
	}
	orphan, err := m.Create(repo, "22222222-0000", "Orphan")
	if err != nil {
		t.Fatal(err)
	}

	var removedPaths []string
	removed, err := m.CleanupOrphans(repo, []string{kept.BranchName}, func(path string) {
		removedPaths = append(removedPaths, path)
	})
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed workspace, got %d", removed)
	}
	if len(removedPaths) != 1 || removedPaths[0] != orphan.Path {
		t.Errorf("verbose callback should report the orphan, got %v", removedPaths)
	}

	if _, err := os.Stat(orphan.Path); !os.IsNotExist(err) {
		t.Error("orphan worktree should be removed")
	}
	if _, err := os.Stat(kept.Path); err != nil {
		t.Errorf("kept worktree should survive: %v", err)
	}
}

func TestSweepOrphanDirs(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t)

	var paths []string
	for i, title := range []string{"First", "Second", "Third"} {
		ws, err := m.Create(repo, string(rune('1'+i))+"0000000-x", title)
		if err != nil {
			t.Fatal(err)
		}
		paths = append(paths, ws.Path)
	}

	removed, err := m.SweepOrphanDirs(repo, paths[:1])
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed dirs, got %d: %v", len(removed), removed)
	}
	for _, p := range removed {
		if p == paths[0] {
			t.Error("valid workspace should not be swept")
		}
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("swept dir should be gone: %s", p)
		}
	}
	if _, err := os.Stat(paths[0]); err != nil {
		t.Errorf("valid workspace should survive: %v", err)
	}
}

func TestSweepOrphanDirsNoProjectDir(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t)

	removed, err := m.SweepOrphanDirs(repo, nil)
	if err != nil {
		t.Fatalf("sweep of a project with no workspaces should succeed: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("expected nothing removed, got %v", removed)
	}
}
