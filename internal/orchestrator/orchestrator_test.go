package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/taskforge/taskforge/internal/broadcast"
	"github.com/taskforge/taskforge/internal/executor"
	"github.com/taskforge/taskforge/internal/preview"
	"github.com/taskforge/taskforge/internal/store"
	"github.com/taskforge/taskforge/internal/workspace"
	"github.com/taskforge/taskforge/pkg/models"
)

// stubSpawner hands out pre-built event channels, one per spawn call,
// and records the working directory of each spawn.
type stubSpawner struct {
	mu     sync.Mutex
	rounds []<-chan executor.Event
	dirs   []string
	err    error
}

func (s *stubSpawner) Spawn(_ context.Context, workingDir, _ string, _ executor.SpawnOptions) (<-chan executor.Event, *executor.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dirs = append(s.dirs, workingDir)
	if s.err != nil {
		return nil, nil, s.err
	}
	if len(s.rounds) == 0 {
		return nil, nil, errors.New("no scripted rounds left")
	}
	round := s.rounds[0]
	s.rounds = s.rounds[1:]
	return round, new(executor.Process), nil
}

func (s *stubSpawner) lastDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dirs) == 0 {
		return ""
	}
	return s.dirs[len(s.dirs)-1]
}

// scriptedRound returns a closed channel that replays the given events.
func scriptedRound(events ...executor.Event) <-chan executor.Event {
	ch := make(chan executor.Event, len(events)+1)
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

// heldRound returns a channel that stays open so the execution loop
// blocks until cancelled.
func heldRound() chan executor.Event {
	ch := make(chan executor.Event, 1)
	ch <- executor.Event{Type: executor.EventStarted, PID: 1}
	return ch
}

// fakeWorkspaces implements workspace.Provider with scripted results.
type fakeWorkspaces struct {
	mu              sync.Mutex
	createErr       error
	mergeErr        error
	mergeCommit     string
	removed         []string
	deletedBranches []string
	sweepArgs       map[string][]string
	sweepRemoved    []string
}

var _ workspace.Provider = (*fakeWorkspaces)(nil)

func (f *fakeWorkspaces) Create(projectPath, taskID, title string) (*workspace.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &workspace.Workspace{
		Path:       filepath.Join(projectPath, ".ws", taskID),
		BranchName: workspace.BranchName(title, taskID),
		TaskID:     taskID,
		CreatedAt:  time.Now(),
	}, nil
}

func (f *fakeWorkspaces) Remove(_, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	return nil
}

func (f *fakeWorkspaces) MergeBranch(_, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mergeErr != nil {
		return "", f.mergeErr
	}
	if f.mergeCommit == "" {
		return "deadbeef", nil
	}
	return f.mergeCommit, nil
}

func (f *fakeWorkspaces) DeleteBranch(_, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedBranches = append(f.deletedBranches, branch)
	return nil
}

func (f *fakeWorkspaces) List(string) ([]*workspace.Workspace, error) {
	return nil, nil
}

func (f *fakeWorkspaces) CleanupOrphans(string, []string, func(string)) (int, error) {
	return 0, nil
}

func (f *fakeWorkspaces) SweepOrphanDirs(projectPath string, validPaths []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sweepArgs == nil {
		f.sweepArgs = make(map[string][]string)
	}
	f.sweepArgs[projectPath] = validPaths
	return f.sweepRemoved, nil
}

type fixture struct {
	orch    *Orchestrator
	tasks   *store.TaskStore
	spawner *stubSpawner
	ws      *fakeWorkspaces
	bus     *broadcast.Broadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	tasks := store.NewTaskStore(db)
	spawner := &stubSpawner{}
	ws := &fakeWorkspaces{}
	bus := broadcast.NewBroadcaster(64)
	t.Cleanup(bus.Close)
	previews := preview.NewManager("true", 42000, 42010)

	orch := New(tasks, ws, spawner, bus, previews, NopLogger())
	return &fixture{orch: orch, tasks: tasks, spawner: spawner, ws: ws, bus: bus}
}

func (f *fixture) newTask(t *testing.T, title string) *models.Task {
	t.Helper()
	task, err := f.tasks.Create(models.CreateTask{
		Title:       title,
		Description: "do the thing",
		ProjectPath: "/tmp/proj",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func waitForTaskStatus(t *testing.T, tasks *store.TaskStore, id string, want models.TaskStatus) *models.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := tasks.Get(id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if task.Status == want {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, _ := tasks.Get(id)
	t.Fatalf("task never reached %s, still %s", want, task.Status)
	return nil
}

func TestStartCompleteRoundTrip(t *testing.T) {
	f := newFixture(t)
	task := f.newTask(t, "Fix login bug")

	f.spawner.rounds = []<-chan executor.Event{scriptedRound(
		executor.Event{Type: executor.EventStarted, PID: 10},
		executor.Event{Type: executor.EventStdout, Line: "working"},
		executor.Event{Type: executor.EventCompleted, Success: true},
	)}

	started, err := f.orch.Start(task.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != models.TaskStatusInProgress {
		t.Errorf("status after start = %s", started.Status)
	}
	if started.BranchName == "" || started.WorktreePath == "" {
		t.Errorf("workspace not persisted: %+v", started)
	}

	reviewed := waitForTaskStatus(t, f.tasks, task.ID, models.TaskStatusReview)
	if reviewed.ErrorMessage != "" {
		t.Errorf("unexpected error message %q", reviewed.ErrorMessage)
	}

	done, err := f.orch.Complete(task.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != models.TaskStatusDone {
		t.Errorf("status after complete = %s", done.Status)
	}
	if done.BranchName != "" || done.WorktreePath != "" {
		t.Errorf("workspace fields not cleared: %+v", done)
	}
}

func TestStartTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	task := f.newTask(t, "long running")

	round := heldRound()
	f.spawner.rounds = []<-chan executor.Event{round}

	if _, err := f.orch.Start(task.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.orch.Start(task.ID); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start err = %v, want ErrAlreadyRunning", err)
	}

	cancelled, err := f.orch.Cancel(task.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.TaskStatusTodo {
		t.Errorf("status after cancel = %s", cancelled.Status)
	}
	if f.orch.IsRunning(task.ID) {
		t.Error("execution still registered after cancel")
	}
}

func TestStartUnknownTask(t *testing.T) {
	f := newFixture(t)
	if _, err := f.orch.Start("no-such-id"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if f.orch.IsRunning("no-such-id") {
		t.Error("failed start left an execution registered")
	}
}

func TestCancelWithoutExecution(t *testing.T) {
	f := newFixture(t)
	task := f.newTask(t, "idle")

	if _, err := f.orch.Cancel(task.ID); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}
	got, err := f.tasks.Get(task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.TaskStatusTodo {
		t.Errorf("status mutated to %s", got.Status)
	}
}

func TestProcessFailureLandsInReviewWithError(t *testing.T) {
	f := newFixture(t)
	task := f.newTask(t, "flaky")

	f.spawner.rounds = []<-chan executor.Event{scriptedRound(
		executor.Event{Type: executor.EventStarted, PID: 11},
		executor.Event{Type: executor.EventCompleted, Success: false},
	)}

	if _, err := f.orch.Start(task.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	got := waitForTaskStatus(t, f.tasks, task.ID, models.TaskStatusReview)
	if got.ErrorMessage == "" {
		t.Error("expected error message on failed execution")
	}
}

func TestWorkspaceFallbackRunsInProjectDir(t *testing.T) {
	f := newFixture(t)
	f.ws.createErr = workspace.ErrNotGitRepo
	task := f.newTask(t, "no repo")

	f.spawner.rounds = []<-chan executor.Event{scriptedRound(
		executor.Event{Type: executor.EventCompleted, Success: true},
	)}

	started, err := f.orch.Start(task.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.BranchName != "" || started.WorktreePath != "" {
		t.Errorf("workspace fields set despite allocation failure: %+v", started)
	}

	waitForTaskStatus(t, f.tasks, task.ID, models.TaskStatusReview)
	if dir := f.spawner.lastDir(); dir != task.ProjectPath {
		t.Errorf("agent ran in %q, want project dir %q", dir, task.ProjectPath)
	}
}

func TestCompleteRequiresReview(t *testing.T) {
	f := newFixture(t)
	task := f.newTask(t, "not reviewed")

	if _, err := f.orch.Complete(task.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestCompleteRequiresBranch(t *testing.T) {
	f := newFixture(t)
	task := f.newTask(t, "no branch")
	if _, err := f.tasks.SetStatus(task.ID, models.TaskStatusReview); err != nil {
		t.Fatalf("set status: %v", err)
	}

	if _, err := f.orch.Complete(task.ID); !errors.Is(err, ErrNoBranch) {
		t.Fatalf("err = %v, want ErrNoBranch", err)
	}
}

func TestMergeEmitsProgressEvents(t *testing.T) {
	f := newFixture(t)
	f.ws.mergeCommit = "cafebabe"
	task := f.newTask(t, "mergeable")
	if _, err := f.tasks.SetWorkspace(task.ID, "tf/mergeable-abc", "/tmp/proj/.ws/x"); err != nil {
		t.Fatalf("set workspace: %v", err)
	}
	if _, err := f.tasks.SetStatus(task.ID, models.TaskStatusReview); err != nil {
		t.Fatalf("set status: %v", err)
	}

	events, cancel := f.bus.Subscribe()
	defer cancel()

	done, err := f.orch.Merge(task.ID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if done.Status != models.TaskStatusDone {
		t.Errorf("status = %s", done.Status)
	}

	var sawStarted, sawProgress, sawComplete bool
	timeout := time.After(2 * time.Second)
	for !(sawStarted && sawProgress && sawComplete) {
		select {
		case ev := <-events:
			switch ev.Type {
			case broadcast.EventMergeStarted:
				sawStarted = true
			case broadcast.EventMergeProgress:
				sawProgress = true
			case broadcast.EventMergeComplete:
				sawComplete = true
				if ev.Commit != "cafebabe" {
					t.Errorf("commit = %q", ev.Commit)
				}
			}
		case <-timeout:
			t.Fatalf("missing merge events: started=%v progress=%v complete=%v", sawStarted, sawProgress, sawComplete)
		}
	}
}

func TestMergeConflictSurfaced(t *testing.T) {
	f := newFixture(t)
	f.ws.mergeErr = workspace.ErrMergeConflict
	task := f.newTask(t, "conflicting")
	if _, err := f.tasks.SetWorkspace(task.ID, "tf/conflicting-abc", "/tmp/proj/.ws/y"); err != nil {
		t.Fatalf("set workspace: %v", err)
	}
	if _, err := f.tasks.SetStatus(task.ID, models.TaskStatusReview); err != nil {
		t.Fatalf("set status: %v", err)
	}

	if _, err := f.orch.Merge(task.ID); !errors.Is(err, workspace.ErrMergeConflict) {
		t.Fatalf("err = %v, want ErrMergeConflict", err)
	}

	// A failed merge must leave the task reviewable for a retry.
	got, err := f.tasks.Get(task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.TaskStatusReview || got.BranchName == "" {
		t.Errorf("task mutated after conflict: %+v", got)
	}
}

func TestDeleteCancelsAndCleansUp(t *testing.T) {
	f := newFixture(t)
	task := f.newTask(t, "doomed")

	round := heldRound()
	f.spawner.rounds = []<-chan executor.Event{round}
	if _, err := f.orch.Start(task.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := f.orch.Delete(task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.tasks.Get(task.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("task still present: %v", err)
	}
	if f.orch.IsRunning(task.ID) {
		t.Error("execution still registered after delete")
	}

	f.ws.mu.Lock()
	defer f.ws.mu.Unlock()
	if len(f.ws.removed) == 0 {
		t.Error("worktree not removed on delete")
	}
}

func TestSweepOrphansUsesPersistedPaths(t *testing.T) {
	f := newFixture(t)
	f.ws.sweepRemoved = []string{"/tmp/proj/.ws/stale"}
	task := f.newTask(t, "keeper")
	if _, err := f.tasks.SetWorkspace(task.ID, "tf/keeper-abc", "/tmp/proj/.ws/keep"); err != nil {
		t.Fatalf("set workspace: %v", err)
	}

	removed, err := f.orch.SweepOrphans()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(removed) != 1 || removed[0] != "/tmp/proj/.ws/stale" {
		t.Errorf("removed = %v", removed)
	}

	f.ws.mu.Lock()
	defer f.ws.mu.Unlock()
	valid := f.ws.sweepArgs["/tmp/proj"]
	if len(valid) != 1 || valid[0] != "/tmp/proj/.ws/keep" {
		t.Errorf("valid paths = %v", valid)
	}
}

func TestSpawnFailureFailsTask(t *testing.T) {
	f := newFixture(t)
	f.spawner.err = executor.ErrAgentNotFound
	task := f.newTask(t, "no agent")

	if _, err := f.orch.Start(task.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	got := waitForTaskStatus(t, f.tasks, task.ID, models.TaskStatusReview)
	if got.ErrorMessage == "" {
		t.Error("expected error message after spawn failure")
	}
}
