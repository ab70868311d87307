// Package executor supervises agent CLI subprocesses. It turns a spawned
// process into an ordered event stream: Started, interleaved output lines,
// then one termination event — unless the process is killed, in which case
// the stream may simply end.
package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// EventType classifies supervisor events.
type EventType string

const (
	// EventStarted is emitted once after the process launches.
	EventStarted EventType = "started"
	// EventStdout carries one line of standard output.
	EventStdout EventType = "stdout"
	// EventStderr carries one line of standard error.
	EventStderr EventType = "stderr"
	// EventCompleted is the terminal event after the process exits.
	EventCompleted EventType = "completed"
)

// Event is one entry of a process's event stream.
type Event struct {
	Type EventType
	// Line is the output line for stdout/stderr events.
	Line string
	// Success reports a clean exit for completed events.
	Success bool
	// PID is the process ID, set on the started event.
	PID int
}

// ErrAgentNotFound is returned when the agent binary cannot be located.
// Callers surface this separately from runtime failures since the fix
// (install the CLI) is actionable by the user.
var ErrAgentNotFound = errors.New("agent binary not found")

// SpawnOptions tune a single invocation.
type SpawnOptions struct {
	// PlanMode launches the agent in read-only planning mode.
	PlanMode bool
}

// Executor spawns agent processes.
type Executor struct {
	binary    string
	extraArgs []string
}

// New creates an executor for the given agent binary. extraArgs are
// appended to every invocation.
func New(binary string, extraArgs []string) *Executor {
	if binary == "" {
		binary = "claude"
	}
	return &Executor{binary: binary, extraArgs: extraArgs}
}

// CheckInstalled verifies the agent binary is on PATH.
func (e *Executor) CheckInstalled() error {
	if _, err := exec.LookPath(e.binary); err != nil {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, e.binary)
	}
	return nil
}

// Spawn launches the agent in workingDir with the given prompt and returns
// its event stream plus a handle for killing it. The channel is closed when
// the process exits and all output has been drained.
func (e *Executor) Spawn(ctx context.Context, workingDir, prompt string, opts SpawnOptions) (<-chan Event, *Process, error) {
	if _, err := exec.LookPath(e.binary); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrAgentNotFound, e.binary)
	}

	ctx, cancel := context.WithCancel(ctx)

	args := []string{
		"--print",
		"--verbose",
		"--output-format", "stream-json",
	}
	if opts.PlanMode {
		args = append(args, "--permission-mode", "plan")
	} else {
		args = append(args, "--dangerously-skip-permissions")
	}
	args = append(args, e.extraArgs...)
	args = append(args, "-p", prompt)

	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Dir = workingDir
	// Stdin stays nil so the process reads from the null device instead of
	// hanging on an inherited terminal.

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("start agent: %w", err)
	}

	proc := &Process{cmd: cmd, cancel: cancel}
	events := make(chan Event, 100)

	go pump(ctx, proc, stdout, stderr, events)

	return events, proc, nil
}

// pump forwards process output into the event channel and emits the
// terminal event once the process exits.
func pump(ctx context.Context, proc *Process, stdout, stderr io.Reader, events chan<- Event) {
	defer close(events)

	events <- Event{Type: EventStarted, PID: proc.PID()}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(ctx, stdout, EventStdout, events)
	}()
	go func() {
		defer wg.Done()
		scanLines(ctx, stderr, EventStderr, events)
	}()
	wg.Wait()

	err := proc.cmd.Wait()

	// A killed process gets no terminal event: the caller that killed it
	// already knows the outcome and must not mistake the kill for failure.
	if ctx.Err() != nil {
		return
	}

	select {
	case events <- Event{Type: EventCompleted, Success: err == nil}:
	case <-ctx.Done():
	}
}

func scanLines(ctx context.Context, r io.Reader, kind EventType, events chan<- Event) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		select {
		case events <- Event{Type: kind, Line: line}:
		case <-ctx.Done():
			return
		}
	}
}

// Process is the kill handle for a spawned agent.
type Process struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	once   sync.Once
}

// PID returns the process ID, or 0 if unavailable.
func (p *Process) PID() int {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}

// Kill terminates the process. Safe to call more than once and after the
// process has already exited.
func (p *Process) Kill() {
	p.once.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
	})
}
