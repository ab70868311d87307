package main

import (
	"context"
	"fmt"
	osexec "os/exec"
	"path/filepath"

	"github.com/taskforge/taskforge/internal/broadcast"
	"github.com/taskforge/taskforge/internal/config"
	"github.com/taskforge/taskforge/internal/executor"
	"github.com/taskforge/taskforge/internal/orchestrator"
	"github.com/taskforge/taskforge/internal/plan"
	"github.com/taskforge/taskforge/internal/preview"
	"github.com/taskforge/taskforge/internal/store"
	"github.com/taskforge/taskforge/internal/workspace"
	"github.com/taskforge/taskforge/pkg/models"
)

// app bundles the wired-up components shared by the CLI commands.
type app struct {
	cfg        *config.Config
	db         *store.DB
	tasks      *store.TaskStore
	chats      *store.ChatStore
	bus        *broadcast.Broadcaster
	orch       *orchestrator.Orchestrator
	plans      *plan.Engine
	workspaces workspace.Provider

	cancelEviction context.CancelFunc
}

// newApp loads configuration, opens the database, and wires the
// orchestrator and plan engine. Call close when done.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	workspaces, err := workspace.NewManager(cfg.Workspace.BaseDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create workspace manager: %w", err)
	}

	exec := executor.New(cfg.Agent.Binary, cfg.Agent.ExtraArgs)
	bus := broadcast.NewBroadcaster(0)
	previews := preview.NewManager(cfg.Preview.Command, cfg.Preview.PortMin, cfg.Preview.PortMax)
	logger := orchestrator.NewDebugLoggerForDataDir(filepath.Dir(cfg.Database.Path))

	tasks := store.NewTaskStore(db)
	orch := orchestrator.New(tasks, workspaces, exec, bus, previews, logger)

	// Reconcile workspaces left behind by a previous crash.
	if removed, err := orch.SweepOrphans(); err != nil {
		logger.Log("startup orphan sweep failed: %v", err)
	} else if len(removed) > 0 {
		logger.Log("startup orphan sweep removed %d workspace(s)", len(removed))
	}

	if cfg.Workspace.RebuildCommand != "" {
		orch.SetRebuildHook(rebuildHook(cfg.Workspace.RebuildCommand, logger))
	}

	plans := plan.NewEngine(exec, bus, cfg.Plan.IdleTimeout)
	evictionCtx, cancelEviction := context.WithCancel(context.Background())
	go plans.RunEvictionLoop(evictionCtx, cfg.Plan.SweepInterval)

	return &app{
		cfg:            cfg,
		db:             db,
		tasks:          tasks,
		chats:          store.NewChatStore(db),
		bus:            bus,
		orch:           orch,
		plans:          plans,
		workspaces:     workspaces,
		cancelEviction: cancelEviction,
	}, nil
}

func (a *app) close() {
	a.cancelEviction()
	a.bus.Close()
	a.db.Close()
}

// rebuildHook runs the configured rebuild command in the merged task's
// project directory. The merge already succeeded, so failures are only
// logged.
func rebuildHook(command string, logger *orchestrator.DebugLogger) func(task *models.Task) {
	return func(task *models.Task) {
		cmd := osexec.Command("sh", "-c", command)
		cmd.Dir = task.ProjectPath
		if out, err := cmd.CombinedOutput(); err != nil {
			logger.Log("rebuild after merge of %s failed: %v: %s", task.ID, err, out)
		}
	}
}
