package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskforge/taskforge/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run headless until interrupted",
	Long: `Run the orchestrator without the board.

Useful when another process drives taskforge, or to keep plan-session
eviction and the startup orphan sweep running in the background.
Configuration changes are picked up live; settings that feed into
already-running components apply on the next start.`,
	RunE: runServe,
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Open the interactive Kanban board",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBoard()
	},
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := CheckAgentCLI(a.cfg.Agent.Binary); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	// Reload the project config live so long-running sessions pick up
	// changed settings without a restart.
	if path := config.FindProjectConfig(); path != "" {
		watcher := config.NewWatcher(path)
		if _, err := watcher.Load(); err == nil {
			watcher.Watch(
				func(cfg *config.Config) {
					a.cfg = cfg
					fmt.Println("configuration reloaded")
				},
				func(err error) {
					fmt.Fprintf(os.Stderr, "config reload failed: %v\n", err)
				},
			)
		}
	}

	fmt.Println("taskforge running; ctrl+c to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	fmt.Println("shutting down")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(boardCmd)
}
