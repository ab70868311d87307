package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taskforge/taskforge/internal/broadcast"
	"github.com/taskforge/taskforge/pkg/models"
)

var (
	addDescription string
	addProjectPath string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks from the command line",
	Long: `Create, inspect, and drive tasks without the interactive board.

Examples:
  taskforge task add "Fix login bug" -d "Users get a 500 on bad passwords"
  taskforge task list
  taskforge task start <id>     # runs the agent and streams its output
  taskforge task merge <id>     # merge a reviewed task back into main
  taskforge task diff <id>      # show what the agent changed`,
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		projectPath := addProjectPath
		if projectPath == "" {
			if projectPath, err = os.Getwd(); err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
		}

		task, err := a.orch.CreateTask(models.CreateTask{
			Title:       args[0],
			Description: addDescription,
			ProjectPath: projectPath,
		})
		if err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		fmt.Printf("Created task %s\n", task.ID)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		tasks, err := a.orch.ListTasks()
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks.")
			return nil
		}

		for _, task := range tasks {
			fmt.Printf("%s  %s  %s\n", task.ID[:8], statusLabel(task.Status), task.Title)
			if task.ErrorMessage != "" {
				color.Red("          %s", task.ErrorMessage)
			}
		}
		return nil
	},
}

func statusLabel(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusTodo:
		return color.WhiteString("%-11s", status)
	case models.TaskStatusInProgress:
		return color.YellowString("%-11s", status)
	case models.TaskStatusReview:
		return color.CyanString("%-11s", status)
	case models.TaskStatusDone:
		return color.GreenString("%-11s", status)
	}
	return string(status)
}

var taskStartCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Start the agent on a task and stream its output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := CheckAgentCLI(a.cfg.Agent.Binary); err != nil {
			return err
		}

		id, err := resolveTaskID(a, args[0])
		if err != nil {
			return err
		}

		events, cancel := a.bus.Subscribe()
		defer cancel()

		task, err := a.orch.Start(id)
		if err != nil {
			return fmt.Errorf("start task: %w", err)
		}
		fmt.Printf("Started %s on branch %s\n", task.ID[:8], task.BranchName)

		for ev := range events {
			if ev.TaskID != id {
				continue
			}
			switch ev.Type {
			case broadcast.EventLog:
				if ev.Stream == "stderr" {
					fmt.Fprintln(os.Stderr, ev.Content)
				} else {
					fmt.Println(ev.Content)
				}
			case broadcast.EventExecutionComplete:
				if ev.Success {
					color.Green("Agent finished; task is ready for review.")
				} else {
					color.Red("Agent failed; check the task's error message.")
				}
				return nil
			}
		}
		return nil
	},
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a running task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		id, err := resolveTaskID(a, args[0])
		if err != nil {
			return err
		}
		task, err := a.orch.Cancel(id)
		if err != nil {
			return fmt.Errorf("cancel task: %w", err)
		}
		fmt.Printf("Cancelled %s (now %s)\n", task.ID[:8], task.Status)
		return nil
	},
}

var taskMergeCmd = &cobra.Command{
	Use:   "merge <id>",
	Short: "Merge a reviewed task's branch into main",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return finishTask(args[0], true)
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Merge and finalize a reviewed task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return finishTask(args[0], false)
	},
}

func finishTask(ref string, announce bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	id, err := resolveTaskID(a, ref)
	if err != nil {
		return err
	}

	var task *models.Task
	if announce {
		events, cancel := a.bus.Subscribe()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range events {
				if ev.TaskID != id {
					continue
				}
				switch ev.Type {
				case broadcast.EventMergeProgress:
					fmt.Println(ev.Content)
				case broadcast.EventMergeComplete, broadcast.EventMergeFailed:
					return
				}
			}
		}()
		task, err = a.orch.Merge(id)
		cancel()
		<-done
	} else {
		task, err = a.orch.Complete(id)
	}
	if err != nil {
		return fmt.Errorf("merge task: %w", err)
	}

	color.Green("Task %s merged and done.", task.ID[:8])
	return nil
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task and its workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		id, err := resolveTaskID(a, args[0])
		if err != nil {
			return err
		}
		if err := a.orch.Delete(id); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		fmt.Println("Deleted.")
		return nil
	},
}

var taskDiffCmd = &cobra.Command{
	Use:   "diff <id>",
	Short: "Show the changes in a task's workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		id, err := resolveTaskID(a, args[0])
		if err != nil {
			return err
		}
		resp, err := a.orch.Diff(id)
		if err != nil {
			return fmt.Errorf("compute diff: %w", err)
		}
		if len(resp.Files) == 0 {
			fmt.Println("No changes.")
			return nil
		}

		for _, file := range resp.Files {
			fmt.Printf("%s %s (%s, %s)\n",
				color.CyanString("%s", file.Path),
				changeLabel(string(file.ChangeType)),
				color.GreenString("+%d", file.Additions),
				color.RedString("-%d", file.Deletions))
		}
		fmt.Printf("\nTotal: %s %s across %d file(s)\n",
			color.GreenString("+%d", resp.TotalAdditions),
			color.RedString("-%d", resp.TotalDeletions),
			len(resp.Files))
		return nil
	},
}

func changeLabel(kind string) string {
	switch kind {
	case "added":
		return color.GreenString("added")
	case "deleted":
		return color.RedString("deleted")
	case "renamed":
		return color.YellowString("renamed")
	}
	return kind
}

// resolveTaskID accepts a full id or an unambiguous prefix.
func resolveTaskID(a *app, ref string) (string, error) {
	if _, err := a.orch.GetTask(ref); err == nil {
		return ref, nil
	}

	tasks, err := a.orch.ListTasks()
	if err != nil {
		return "", fmt.Errorf("list tasks: %w", err)
	}
	var matches []string
	for _, task := range tasks {
		if strings.HasPrefix(task.ID, ref) {
			matches = append(matches, task.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no task matches %q", ref)
	default:
		return "", fmt.Errorf("%q is ambiguous (%d matches)", ref, len(matches))
	}
}

func init() {
	taskAddCmd.Flags().StringVarP(&addDescription, "description", "d", "", "Task description (used as the agent prompt)")
	taskAddCmd.Flags().StringVar(&addProjectPath, "project", "", "Project directory (defaults to the current directory)")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskStartCmd)
	taskCmd.AddCommand(taskCancelCmd)
	taskCmd.AddCommand(taskMergeCmd)
	taskCmd.AddCommand(taskCompleteCmd)
	taskCmd.AddCommand(taskDeleteCmd)
	taskCmd.AddCommand(taskDiffCmd)
}
