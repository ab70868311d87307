package preview

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestStartAndStop(t *testing.T) {
	m := NewManager("sleep 30", 4300, 4310)
	dir := t.TempDir()

	inst, err := m.Start("task-1", dir)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if inst.Port < 4300 || inst.Port > 4310 {
		t.Errorf("port %d outside configured range", inst.Port)
	}
	if inst.PID == 0 {
		t.Error("expected a live PID")
	}

	got, ok := m.Get("task-1")
	if !ok || got.Port != inst.Port {
		t.Errorf("Get should return the running instance, got %+v ok=%v", got, ok)
	}

	if err := m.Stop("task-1"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := m.Get("task-1"); ok {
		t.Error("stopped preview should be gone")
	}
	if err := m.Stop("task-1"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second stop should report ErrNotRunning, got %v", err)
	}
}

func TestStartConflict(t *testing.T) {
	m := NewManager("sleep 30", 4311, 4320)
	dir := t.TempDir()

	if _, err := m.Start("task-1", dir); err != nil {
		t.Fatal(err)
	}
	defer m.StopAll()

	if _, err := m.Start("task-1", dir); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStartMissingDir(t *testing.T) {
	m := NewManager("sleep 1", 4321, 4330)
	if _, err := m.Start("task-1", "/does/not/exist"); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestNoPortAvailable(t *testing.T) {
	// Occupy the entire (single-port) range.
	l, err := net.Listen("tcp", "127.0.0.1:4331")
	if err != nil {
		t.Skipf("cannot bind probe port: %v", err)
	}
	defer l.Close()

	m := NewManager("sleep 1", 4331, 4331)
	if _, err := m.Start("task-1", t.TempDir()); !errors.Is(err, ErrNoPortAvailable) {
		t.Errorf("expected ErrNoPortAvailable, got %v", err)
	}
}

func TestExitedPreviewIsReaped(t *testing.T) {
	m := NewManager("true", 4332, 4340)
	if _, err := m.Start("task-1", t.TempDir()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := m.Get("task-1"); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("exited preview was never reaped")
}

func TestStopAll(t *testing.T) {
	m := NewManager("sleep 30", 4341, 4360)
	for i := 0; i < 3; i++ {
		if _, err := m.Start(fmt.Sprintf("task-%d", i), t.TempDir()); err != nil {
			t.Fatal(err)
		}
	}

	m.StopAll()
	for i := 0; i < 3; i++ {
		if _, ok := m.Get(fmt.Sprintf("task-%d", i)); ok {
			t.Errorf("task-%d preview should be stopped", i)
		}
	}
}
