package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	cleanupForce   bool
	cleanupVerbose bool
	cleanupDryRun  bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove orphaned worktrees and branches",
	Long: `Clean up worktrees whose task no longer references them.

This command:
  - Lists taskforge-managed worktrees for the current project
  - Identifies orphans (no task claims their branch)
  - Removes orphaned worktrees and their branches
  - Prunes stale worktree metadata

Use this after a crash or interrupted run to reclaim disk space.

Examples:
  taskforge cleanup              # Interactive cleanup with confirmation
  taskforge cleanup --force      # Skip confirmation prompt
  taskforge cleanup --dry-run    # Show what would be removed
  taskforge cleanup -v           # Verbose output showing each removal`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "Skip confirmation prompt")
	cleanupCmd.Flags().BoolVarP(&cleanupVerbose, "verbose", "v", false, "Show each worktree as it's removed")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be removed without removing")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	tasks, err := a.tasks.FindAllByProject(cwd)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	var keepBranches []string
	for _, task := range tasks {
		if task.BranchName != "" {
			keepBranches = append(keepBranches, task.BranchName)
		}
	}

	workspaces, err := a.workspaces.List(cwd)
	if err != nil {
		return fmt.Errorf("list worktrees: %w", err)
	}
	keep := make(map[string]bool, len(keepBranches))
	for _, branch := range keepBranches {
		keep[branch] = true
	}
	var orphans int
	for _, ws := range workspaces {
		if !keep[ws.BranchName] {
			orphans++
			fmt.Printf("  - %s (branch: %s)\n", ws.Path, ws.BranchName)
		}
	}

	if orphans == 0 {
		fmt.Println("No orphaned worktrees found.")
		return nil
	}
	fmt.Printf("Found %d orphaned worktree(s).\n\n", orphans)

	if cleanupDryRun {
		fmt.Println("Dry run mode - no worktrees were removed.")
		return nil
	}

	if !cleanupForce {
		fmt.Print("Remove these worktrees? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Cleanup cancelled.")
			return nil
		}
	}

	var verboseCallback func(path string)
	if cleanupVerbose {
		verboseCallback = func(path string) {
			fmt.Printf("Removed: %s\n", path)
		}
	}

	removed, err := a.workspaces.CleanupOrphans(cwd, keepBranches, verboseCallback)
	if err != nil {
		return fmt.Errorf("cleanup orphaned worktrees: %w", err)
	}

	color.Green("Successfully removed %d orphaned worktree(s).", removed)
	return nil
}
