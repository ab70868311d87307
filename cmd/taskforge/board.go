package main

import (
	"fmt"

	"github.com/taskforge/taskforge/internal/tui"
)

// runBoard launches the interactive Kanban board.
func runBoard() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := CheckAgentCLI(a.cfg.Agent.Binary); err != nil {
		return err
	}

	events, cancel := a.bus.Subscribe()
	defer cancel()

	if err := tui.Run(a.orch, events); err != nil {
		return fmt.Errorf("run board: %w", err)
	}
	return nil
}
