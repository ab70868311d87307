package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taskforge/taskforge/internal/broadcast"
	"github.com/taskforge/taskforge/pkg/models"
)

var (
	planTitle       string
	planNoQuestions bool
)

var planCmd = &cobra.Command{
	Use:   "plan <prompt>",
	Short: "Plan a feature interactively before implementing it",
	Long: `Run a planning session with the agent.

The agent studies the project and interviews you about the feature.
Answer its questions in the terminal; when it has enough context it
produces an implementation plan.

Examples:
  taskforge plan "Add OAuth login"
  taskforge plan --no-questions "Add OAuth login"   # plan without the interview`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planTitle, "title", "", "Session title (defaults to the prompt)")
	planCmd.Flags().BoolVar(&planNoQuestions, "no-questions", false, "Skip the interview and plan directly")
}

func runPlan(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := CheckAgentCLI(a.cfg.Agent.Binary); err != nil {
		return err
	}

	prompt := args[0]
	title := planTitle
	if title == "" {
		title = prompt
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	events, cancel := a.bus.Subscribe()
	defer cancel()

	info, err := a.plans.Create(cwd, title, prompt, !planNoQuestions)
	if err != nil {
		return fmt.Errorf("create plan session: %w", err)
	}
	fmt.Println("Planning... (ctrl+c to abort)")

	reader := bufio.NewReader(os.Stdin)
	for ev := range events {
		if ev.SessionID != info.ID {
			continue
		}
		switch ev.Type {
		case broadcast.EventPlanQuestions:
			answers, err := askUser(reader, ev.Questions)
			if err != nil {
				return err
			}
			if _, err := a.plans.Answer(info.ID, answers); err != nil {
				return fmt.Errorf("submit answers: %w", err)
			}
			fmt.Println("Planning...")
		case broadcast.EventPlanSummary:
			fmt.Println()
			color.Cyan("Plan")
			fmt.Println(ev.Content)
			if _, err := a.plans.Complete(info.ID); err != nil {
				return fmt.Errorf("complete session: %w", err)
			}
			return nil
		case broadcast.EventPlanStatus:
			if ev.Status == models.PlanStatusError {
				return fmt.Errorf("planning failed; check that the agent CLI works in this directory")
			}
		}
	}
	return nil
}

// askUser prompts for each question on the terminal and collects the
// typed or selected answers.
func askUser(reader *bufio.Reader, questions []models.PlanQuestion) ([]models.PlanAnswer, error) {
	answers := make([]models.PlanAnswer, 0, len(questions))
	for _, q := range questions {
		fmt.Println()
		if q.Header != "" {
			color.Yellow("%s", q.Header)
		}
		fmt.Println(q.Question)
		for i, opt := range q.Options {
			if opt.Description != "" {
				fmt.Printf("  %d) %s - %s\n", i+1, opt.Label, opt.Description)
			} else {
				fmt.Printf("  %d) %s\n", i+1, opt.Label)
			}
		}
		if q.MultiSelect {
			fmt.Print("> (comma-separated numbers or free text) ")
		} else {
			fmt.Print("> ")
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read answer: %w", err)
		}
		line = strings.TrimSpace(line)

		answers = append(answers, models.PlanAnswer{
			QuestionIndex: q.Index,
			Answers:       resolveChoices(line, q.Options),
		})
	}
	return answers, nil
}

// resolveChoices maps numeric input onto option labels; anything else
// passes through as free text.
func resolveChoices(input string, options []models.QuestionOption) []string {
	if input == "" {
		return []string{""}
	}
	var out []string
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		var n int
		if _, err := fmt.Sscanf(part, "%d", &n); err == nil && n >= 1 && n <= len(options) {
			out = append(out, options[n-1].Label)
		} else {
			out = append(out, part)
		}
	}
	return out
}
