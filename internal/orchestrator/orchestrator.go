package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/taskforge/taskforge/internal/broadcast"
	"github.com/taskforge/taskforge/internal/diff"
	"github.com/taskforge/taskforge/internal/executor"
	"github.com/taskforge/taskforge/internal/preview"
	"github.com/taskforge/taskforge/internal/store"
	"github.com/taskforge/taskforge/internal/workspace"
	"github.com/taskforge/taskforge/pkg/models"
)

// Spawner is the process-spawn primitive the orchestrator drives.
// Satisfied by *executor.Executor.
type Spawner interface {
	Spawn(ctx context.Context, workingDir, prompt string, opts executor.SpawnOptions) (<-chan executor.Event, *executor.Process, error)
}

// execution tracks one live agent run for a task. The cancel channel is
// closed at most once via signal; done is closed when the supervising
// loop has fully retired and reconciled the task record.
type execution struct {
	taskID string
	cancel chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (e *execution) signal() {
	e.once.Do(func() { close(e.cancel) })
}

func (e *execution) cancelled() bool {
	select {
	case <-e.cancel:
		return true
	default:
		return false
	}
}

// Orchestrator coordinates task lifecycle: workspace allocation, agent
// supervision, merge-and-complete, and cleanup. All collaborators are
// injected at construction.
type Orchestrator struct {
	tasks      *store.TaskStore
	workspaces workspace.Provider
	spawner    Spawner
	bus        *broadcast.Broadcaster
	previews   *preview.Manager
	logger     *DebugLogger

	// rebuildHook, when set, runs asynchronously after a successful merge.
	rebuildHook func(task *models.Task)

	mu      sync.Mutex
	running map[string]*execution
}

// New creates an orchestrator. A nil logger disables debug logging.
func New(tasks *store.TaskStore, workspaces workspace.Provider, spawner Spawner, bus *broadcast.Broadcaster, previews *preview.Manager, logger *DebugLogger) *Orchestrator {
	if logger == nil {
		logger = NopLogger()
	}
	return &Orchestrator{
		tasks:      tasks,
		workspaces: workspaces,
		spawner:    spawner,
		bus:        bus,
		previews:   previews,
		logger:     logger,
		running:    make(map[string]*execution),
	}
}

// SetRebuildHook registers a hook invoked in its own goroutine after
// each successful merge.
func (o *Orchestrator) SetRebuildHook(hook func(task *models.Task)) {
	o.rebuildHook = hook
}

// CreateTask persists a new task and announces it.
func (o *Orchestrator) CreateTask(req models.CreateTask) (*models.Task, error) {
	task, err := o.tasks.Create(req)
	if err != nil {
		return nil, err
	}
	o.publishTask(task)
	return task, nil
}

// GetTask returns a task by id.
func (o *Orchestrator) GetTask(id string) (*models.Task, error) {
	return o.tasks.Get(id)
}

// ListTasks returns all tasks, oldest first.
func (o *Orchestrator) ListTasks() ([]*models.Task, error) {
	return o.tasks.List()
}

// UpdateTask applies a partial update and announces the result.
func (o *Orchestrator) UpdateTask(id string, upd models.UpdateTask) (*models.Task, error) {
	task, err := o.tasks.Update(id, upd)
	if err != nil {
		return nil, err
	}
	o.publishTask(task)
	return task, nil
}

// IsRunning reports whether the task has a live execution.
func (o *Orchestrator) IsRunning(taskID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[taskID]
	return ok
}

// Start launches the agent for a task. Workspace isolation is
// best-effort: if allocation fails the agent runs directly in the
// project directory and the degradation is logged and announced. The
// updated task is returned immediately; execution continues in the
// background.
func (o *Orchestrator) Start(taskID string) (*models.Task, error) {
	ex := &execution{
		taskID: taskID,
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}

	// Registering before any slow work makes double-start impossible:
	// the second caller sees the entry and is rejected.
	o.mu.Lock()
	if _, ok := o.running[taskID]; ok {
		o.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	o.running[taskID] = ex
	o.mu.Unlock()

	task, err := o.tasks.Get(taskID)
	if err != nil {
		o.deregister(ex)
		return nil, err
	}

	workingDir := task.ProjectPath
	ws, err := o.workspaces.Create(task.ProjectPath, task.ID, task.Title)
	if err != nil {
		o.logger.Log("workspace allocation failed for task %s: %v; running in project directory", taskID, err)
		ev := broadcast.NewEvent(broadcast.EventLog)
		ev.TaskID = taskID
		ev.Stream = "system"
		ev.Content = fmt.Sprintf("workspace allocation failed (%v); running without isolation in %s", err, task.ProjectPath)
		o.bus.Publish(ev)
	} else {
		workingDir = ws.Path
		if task, err = o.tasks.SetWorkspace(taskID, ws.BranchName, ws.Path); err != nil {
			o.deregister(ex)
			return nil, fmt.Errorf("persist workspace: %w", err)
		}
	}

	task, err = o.tasks.SetStatus(taskID, models.TaskStatusInProgress)
	if err != nil {
		o.deregister(ex)
		return nil, fmt.Errorf("mark task in progress: %w", err)
	}
	o.publishTask(task)

	go o.run(ex, task, workingDir)

	return task, nil
}

// run supervises one agent execution until completion or cancellation,
// reconciling the task record on every exit path before deregistering.
func (o *Orchestrator) run(ex *execution, task *models.Task, workingDir string) {
	defer o.deregister(ex)

	events, proc, err := o.spawner.Spawn(context.Background(), workingDir, task.Prompt(), executor.SpawnOptions{})
	if err != nil {
		o.logger.Log("spawn failed for task %s: %v", task.ID, err)
		o.failTask(task.ID, fmt.Sprintf("failed to start agent: %v", err))
		return
	}

	for {
		select {
		case <-ex.cancel:
			proc.Kill()
			o.resetTask(task.ID)
			return
		case ev, ok := <-events:
			if !ok {
				// The stream ended without a terminal event: the
				// process was killed out from under us.
				if ex.cancelled() {
					o.resetTask(task.ID)
				} else {
					o.failTask(task.ID, "agent process terminated unexpectedly")
				}
				return
			}
			switch ev.Type {
			case executor.EventStarted:
				o.logger.Log("task %s: agent started (pid %d) in %s", task.ID, ev.PID, workingDir)
			case executor.EventStdout, executor.EventStderr:
				logEv := broadcast.NewEvent(broadcast.EventLog)
				logEv.TaskID = task.ID
				logEv.Content = ev.Line
				if ev.Type == executor.EventStderr {
					logEv.Stream = "stderr"
				} else {
					logEv.Stream = "stdout"
				}
				o.bus.Publish(logEv)
			case executor.EventCompleted:
				if ev.Success {
					if updated, err := o.tasks.SetStatus(task.ID, models.TaskStatusReview); err != nil {
						o.logger.Log("task %s: set review failed: %v", task.ID, err)
					} else {
						o.publishTask(updated)
					}
				} else {
					o.failTask(task.ID, "agent exited with a failure status")
				}
				doneEv := broadcast.NewEvent(broadcast.EventExecutionComplete)
				doneEv.TaskID = task.ID
				doneEv.Success = ev.Success
				o.bus.Publish(doneEv)
				return
			}
		}
	}
}

// failTask records an error message, which also moves the task to
// review so the failure is visible on the board.
func (o *Orchestrator) failTask(taskID, message string) {
	updated, err := o.tasks.SetError(taskID, message)
	if err != nil {
		o.logger.Log("task %s: set error failed: %v", taskID, err)
		return
	}
	o.publishTask(updated)
}

// resetTask returns a cancelled task to the todo column.
func (o *Orchestrator) resetTask(taskID string) {
	updated, err := o.tasks.SetStatus(taskID, models.TaskStatusTodo)
	if err != nil {
		o.logger.Log("task %s: reset to todo failed: %v", taskID, err)
		return
	}
	o.publishTask(updated)
}

func (o *Orchestrator) deregister(ex *execution) {
	o.mu.Lock()
	if o.running[ex.taskID] == ex {
		delete(o.running, ex.taskID)
	}
	o.mu.Unlock()
	close(ex.done)
}

// Cancel stops a running task's agent and waits for the supervising
// loop to retire before returning the task in its post-cancel state.
func (o *Orchestrator) Cancel(taskID string) (*models.Task, error) {
	o.mu.Lock()
	ex := o.running[taskID]
	o.mu.Unlock()
	if ex == nil {
		return nil, ErrNotRunning
	}

	ex.signal()
	<-ex.done

	return o.tasks.Get(taskID)
}

// Complete merges a reviewed task's branch and finalizes it without
// granular progress events.
func (o *Orchestrator) Complete(taskID string) (*models.Task, error) {
	return o.finish(taskID, false)
}

// Merge merges a reviewed task's branch into the project's main branch,
// emitting progress events along the way.
func (o *Orchestrator) Merge(taskID string) (*models.Task, error) {
	return o.finish(taskID, true)
}

func (o *Orchestrator) finish(taskID string, announce bool) (*models.Task, error) {
	task, err := o.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusReview {
		return nil, fmt.Errorf("%w: task is %s", ErrInvalidState, task.Status)
	}
	if task.BranchName == "" {
		return nil, ErrNoBranch
	}

	// A live preview holds the worktree open; stop it first.
	o.previews.StopIfRunning(taskID)

	if announce {
		ev := broadcast.NewEvent(broadcast.EventMergeStarted)
		ev.TaskID = taskID
		o.bus.Publish(ev)
		o.mergeProgress(taskID, fmt.Sprintf("Merging branch %s", task.BranchName))
	}

	commit, err := o.workspaces.MergeBranch(task.ProjectPath, task.BranchName)
	if err != nil {
		if announce {
			ev := broadcast.NewEvent(broadcast.EventMergeFailed)
			ev.TaskID = taskID
			ev.Content = err.Error()
			o.bus.Publish(ev)
		}
		return nil, err
	}

	if announce {
		o.mergeProgress(taskID, "Cleaning up workspace")
	}
	if task.WorktreePath != "" {
		o.nonfatal("remove worktree", o.workspaces.Remove(task.ProjectPath, task.WorktreePath))
	}
	// The merge already landed; a leftover branch is cosmetic.
	o.nonfatal("delete branch", o.workspaces.DeleteBranch(task.ProjectPath, task.BranchName))

	done := models.TaskStatusDone
	empty := ""
	updated, err := o.tasks.Update(taskID, models.UpdateTask{
		Status:       &done,
		BranchName:   &empty,
		WorktreePath: &empty,
	})
	if err != nil {
		return nil, fmt.Errorf("finalize task: %w", err)
	}
	o.publishTask(updated)

	if announce {
		ev := broadcast.NewEvent(broadcast.EventMergeComplete)
		ev.TaskID = taskID
		ev.Commit = commit
		o.bus.Publish(ev)
		if o.rebuildHook != nil {
			go o.rebuildHook(updated)
		}
	}

	return updated, nil
}

// Delete cancels any live execution, tears down the task's workspace
// best-effort, removes the record, and announces the deletion.
func (o *Orchestrator) Delete(taskID string) error {
	o.mu.Lock()
	ex := o.running[taskID]
	o.mu.Unlock()
	if ex != nil {
		ex.signal()
		<-ex.done
	}

	task, err := o.tasks.Get(taskID)
	if err != nil {
		return err
	}

	o.previews.StopIfRunning(taskID)
	if task.WorktreePath != "" {
		o.nonfatal("remove worktree", o.workspaces.Remove(task.ProjectPath, task.WorktreePath))
	}
	if task.BranchName != "" {
		o.nonfatal("delete branch", o.workspaces.DeleteBranch(task.ProjectPath, task.BranchName))
	}

	if err := o.tasks.Delete(taskID); err != nil {
		return err
	}

	ev := broadcast.NewEvent(broadcast.EventTaskDeleted)
	ev.TaskID = taskID
	o.bus.Publish(ev)
	return nil
}

// SweepOrphans removes on-disk workspace directories that no persisted
// task references. Run once at startup to reconcile after a crash.
func (o *Orchestrator) SweepOrphans() ([]string, error) {
	tasks, err := o.tasks.List()
	if err != nil {
		return nil, err
	}

	valid := make(map[string][]string)
	projects := make(map[string]struct{})
	for _, t := range tasks {
		projects[t.ProjectPath] = struct{}{}
		if t.WorktreePath != "" {
			valid[t.ProjectPath] = append(valid[t.ProjectPath], t.WorktreePath)
		}
	}

	var removed []string
	for project := range projects {
		paths, err := o.workspaces.SweepOrphanDirs(project, valid[project])
		if err != nil {
			o.nonfatal("sweep orphan workspaces", err)
			continue
		}
		removed = append(removed, paths...)
	}
	if len(removed) > 0 {
		o.logger.Log("orphan sweep removed %d workspace(s)", len(removed))
	}
	return removed, nil
}

// Diff computes the unified diff of a task's workspace. A task without
// a workspace yields an empty diff.
func (o *Orchestrator) Diff(taskID string) (*diff.Response, error) {
	task, err := o.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	if task.WorktreePath == "" {
		return &diff.Response{Files: []diff.FileDiff{}}, nil
	}
	return diff.Compute(task.WorktreePath)
}

// StartPreview launches the preview server in the task's workspace, or
// the project directory if the task has none.
func (o *Orchestrator) StartPreview(taskID string) (*preview.Instance, error) {
	task, err := o.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	dir := task.WorktreePath
	if dir == "" {
		dir = task.ProjectPath
	}

	inst, err := o.previews.Start(taskID, dir)
	if err != nil {
		return nil, err
	}

	ev := broadcast.NewEvent(broadcast.EventPreviewStarted)
	ev.TaskID = taskID
	ev.Port = inst.Port
	o.bus.Publish(ev)
	return inst, nil
}

// StopPreview stops the task's preview server.
func (o *Orchestrator) StopPreview(taskID string) error {
	if err := o.previews.Stop(taskID); err != nil {
		return err
	}
	ev := broadcast.NewEvent(broadcast.EventPreviewStopped)
	ev.TaskID = taskID
	o.bus.Publish(ev)
	return nil
}

func (o *Orchestrator) publishTask(task *models.Task) {
	ev := broadcast.NewEvent(broadcast.EventTaskUpdated)
	ev.TaskID = task.ID
	ev.Task = task
	o.bus.Publish(ev)
}

// mergeProgress emits one intermediate merge step.
func (o *Orchestrator) mergeProgress(taskID, message string) {
	ev := broadcast.NewEvent(broadcast.EventMergeProgress)
	ev.TaskID = taskID
	ev.Content = message
	o.bus.Publish(ev)
}

// nonfatal logs a cleanup failure without propagating it. Used where
// the primary effect already succeeded and the remaining work is
// housekeeping.
func (o *Orchestrator) nonfatal(action string, err error) {
	if err != nil {
		o.logger.Log("non-fatal cleanup failure (%s): %v", action, err)
	}
}
