// Package preview runs disposable dev servers inside task workspaces so
// the work in a branch can be inspected before merging.
package preview

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"
)

var (
	// ErrAlreadyRunning is returned when a task already has a preview.
	ErrAlreadyRunning = errors.New("preview already running for task")
	// ErrNotRunning is returned when a task has no preview to stop.
	ErrNotRunning = errors.New("no preview running for task")
	// ErrNoPortAvailable is returned when the configured port range is
	// exhausted.
	ErrNoPortAvailable = errors.New("no available port in configured range")
)

// Instance describes a running preview server.
type Instance struct {
	TaskID    string    `json:"task_id"`
	Port      int       `json:"port"`
	PID       int       `json:"pid"`
	Dir       string    `json:"dir"`
	StartedAt time.Time `json:"started_at"`
}

type running struct {
	instance Instance
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	once     sync.Once
}

func (r *running) kill() {
	r.once.Do(r.cancel)
}

// Manager owns at most one preview process per task.
type Manager struct {
	command string
	portMin int
	portMax int

	mu    sync.Mutex
	procs map[string]*running
}

// NewManager creates a preview manager. command is the shell command that
// starts the dev server; the allocated port is handed to it via PORT.
func NewManager(command string, portMin, portMax int) *Manager {
	return &Manager{
		command: command,
		portMin: portMin,
		portMax: portMax,
		procs:   make(map[string]*running),
	}
}

// findAvailablePort probes the configured range for a bindable port.
func (m *Manager) findAvailablePort() (int, error) {
	for port := m.portMin; port <= m.portMax; port++ {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		l.Close()
		return port, nil
	}
	return 0, ErrNoPortAvailable
}

// Start launches a preview server for the task in the given directory.
func (m *Manager) Start(taskID, dir string) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.procs[taskID]; ok {
		return nil, ErrAlreadyRunning
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("preview directory: %w", err)
	}

	port, err := m.findAvailablePort()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "sh", "-c", m.command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), fmt.Sprintf("PORT=%d", port))

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start preview: %w", err)
	}

	r := &running{
		instance: Instance{
			TaskID:    taskID,
			Port:      port,
			PID:       cmd.Process.Pid,
			Dir:       dir,
			StartedAt: time.Now(),
		},
		cmd:    cmd,
		cancel: cancel,
	}
	m.procs[taskID] = r

	// Reap the process and drop the registration if it exits on its own.
	go func() {
		_ = cmd.Wait()
		m.mu.Lock()
		if m.procs[taskID] == r {
			delete(m.procs, taskID)
		}
		m.mu.Unlock()
	}()

	inst := r.instance
	return &inst, nil
}

// Get returns the running preview for the task, if any.
func (m *Manager) Get(taskID string) (*Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.procs[taskID]
	if !ok {
		return nil, false
	}
	inst := r.instance
	return &inst, true
}

// Stop kills the task's preview server.
func (m *Manager) Stop(taskID string) error {
	m.mu.Lock()
	r, ok := m.procs[taskID]
	delete(m.procs, taskID)
	m.mu.Unlock()

	if !ok {
		return ErrNotRunning
	}
	r.kill()
	return nil
}

// StopIfRunning kills the task's preview server if one exists. Used on the
// merge path where a missing preview is the normal case.
func (m *Manager) StopIfRunning(taskID string) {
	_ = m.Stop(taskID)
}

// StopAll kills every running preview. Called on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	procs := m.procs
	m.procs = make(map[string]*running)
	m.mu.Unlock()

	for _, r := range procs {
		r.kill()
	}
}
