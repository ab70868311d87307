package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// CheckAgentCLI verifies that the configured agent binary is available
// in PATH. Returns an error with installation instructions if not found.
func CheckAgentCLI(binary string) error {
	if binary == "" {
		binary = "claude"
	}
	_, err := exec.LookPath(binary)
	if err != nil {
		return fmt.Errorf("%s CLI not found in PATH\n\n"+
			"Taskforge drives the Claude Code CLI to work on tasks.\n\n"+
			"Install it with:\n"+
			"  npm install -g @anthropic-ai/claude-code\n\n"+
			"or point agent.binary in your config at a compatible CLI.", binary)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "taskforge",
	Short: "Kanban board for agent-driven development",
	Long: `Taskforge runs coding-agent tasks on a Kanban board.

Each started task gets its own git branch and worktree, so agents work
in isolation and finished work is merged back with one keystroke.

With no arguments, launches the interactive board where you can create
tasks, start agents, watch their output, and merge reviewed work.

Core capabilities:
- Spawns isolated agents in git worktrees
- Streams agent output live to the board
- Plans features interactively before implementation
- Merges reviewed branches back into main`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBoard()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}
