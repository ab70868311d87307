package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeStubAgent writes an executable script that stands in for the agent
// CLI. The script ignores the flag arguments the executor passes.
func writeStubAgent(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub-agent")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// collect drains the event stream with a timeout guard.
func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var all []Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return all
			}
			all = append(all, ev)
		case <-timeout:
			t.Fatalf("timed out draining events, got %d so far", len(all))
		}
	}
}

func TestSpawnSuccess(t *testing.T) {
	bin := writeStubAgent(t, `echo "working on it"
echo "a warning" >&2
exit 0`)
	e := New(bin, nil)

	events, proc, err := e.Spawn(context.Background(), t.TempDir(), "do the thing", SpawnOptions{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if proc.PID() == 0 {
		t.Error("expected a live PID")
	}

	all := collect(t, events)
	if len(all) < 3 {
		t.Fatalf("expected started+output+completed, got %v", all)
	}

	if all[0].Type != EventStarted {
		t.Errorf("first event should be started, got %q", all[0].Type)
	}

	var sawStdout, sawStderr bool
	for _, ev := range all {
		switch ev.Type {
		case EventStdout:
			if ev.Line == "working on it" {
				sawStdout = true
			}
		case EventStderr:
			if ev.Line == "a warning" {
				sawStderr = true
			}
		}
	}
	if !sawStdout || !sawStderr {
		t.Errorf("missing output lines (stdout=%v stderr=%v): %v", sawStdout, sawStderr, all)
	}

	last := all[len(all)-1]
	if last.Type != EventCompleted || !last.Success {
		t.Errorf("last event should be a successful completion, got %+v", last)
	}
}

func TestSpawnFailureReportsUnsuccessfulCompletion(t *testing.T) {
	bin := writeStubAgent(t, `echo "about to fail"
exit 3`)
	e := New(bin, nil)

	events, _, err := e.Spawn(context.Background(), t.TempDir(), "prompt", SpawnOptions{})
	if err != nil {
		t.Fatal(err)
	}

	all := collect(t, events)
	last := all[len(all)-1]
	if last.Type != EventCompleted {
		t.Fatalf("expected terminal completion event, got %+v", last)
	}
	if last.Success {
		t.Error("non-zero exit should report Success=false")
	}
}

func TestSpawnAgentNotFound(t *testing.T) {
	e := New("definitely-not-a-real-agent-binary", nil)
	_, _, err := e.Spawn(context.Background(), t.TempDir(), "prompt", SpawnOptions{})
	if !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestCheckInstalled(t *testing.T) {
	if err := New("sh", nil).CheckInstalled(); err != nil {
		t.Errorf("sh should be installed: %v", err)
	}
	if err := New("definitely-not-a-real-agent-binary", nil).CheckInstalled(); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestKillEndsStreamWithoutTerminalEvent(t *testing.T) {
	bin := writeStubAgent(t, `echo "running"
exec sleep 30`)
	e := New(bin, nil)

	events, proc, err := e.Spawn(context.Background(), t.TempDir(), "prompt", SpawnOptions{})
	if err != nil {
		t.Fatal(err)
	}

	// Wait for the process to be clearly running.
	for ev := range events {
		if ev.Type == EventStdout {
			break
		}
	}

	proc.Kill()
	proc.Kill() // double-kill is a no-op

	all := collect(t, events)
	for _, ev := range all {
		if ev.Type == EventCompleted {
			t.Errorf("killed process should not emit a completion event, got %+v", ev)
		}
	}
}
