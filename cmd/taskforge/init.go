package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	initForce          bool
	initSkipAgentCheck bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a project for taskforge",
	Long: `Set up a directory for use with taskforge.

This command:
  - Verifies prerequisites (git, the agent CLI)
  - Writes a .taskforge.yaml with commented defaults

The directory argument is optional and defaults to the current directory.

Examples:
  taskforge init               # Initialize current directory
  taskforge init ./myproject   # Initialize specific directory
  taskforge init --force       # Overwrite an existing .taskforge.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing .taskforge.yaml")
	initCmd.Flags().BoolVar(&initSkipAgentCheck, "skip-agent-check", false, "Skip agent CLI availability check")
}

// projectConfig is the shape written to .taskforge.yaml. Only the
// settings a project typically overrides are included.
type projectConfig struct {
	Agent struct {
		Binary    string   `yaml:"binary"`
		ExtraArgs []string `yaml:"extra_args,omitempty"`
	} `yaml:"agent"`
	Preview struct {
		Command string `yaml:"command"`
		PortMin int    `yaml:"port_min"`
		PortMax int    `yaml:"port_max"`
	} `yaml:"preview"`
	Chat struct {
		Backend string `yaml:"backend"`
		Model   string `yaml:"model,omitempty"`
	} `yaml:"chat"`
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing taskforge in %s...\n\n", absPath)

	if _, err := exec.LookPath("git"); err != nil {
		printStatus("✗", "Git not found", color.FgRed)
		return fmt.Errorf("git is required: %w", err)
	}
	printStatus("✓", "Git found", color.FgGreen)

	if !initSkipAgentCheck {
		if err := CheckAgentCLI("claude"); err != nil {
			printStatus("✗", "Agent CLI not found", color.FgRed)
			return err
		}
		printStatus("✓", "Agent CLI found", color.FgGreen)
	}

	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		printStatus("⚠", "ANTHROPIC_API_KEY not set (needed for the chat assistant)", color.FgYellow)
	} else {
		printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
	}

	configPath := filepath.Join(absPath, ".taskforge.yaml")
	if _, err := os.Stat(configPath); err == nil && !initForce {
		fmt.Println("\n.taskforge.yaml already exists. Use --force to overwrite.")
		return nil
	}

	var pc projectConfig
	pc.Agent.Binary = "claude"
	pc.Preview.Command = "npm run dev"
	pc.Preview.PortMin = 3000
	pc.Preview.PortMax = 3999
	pc.Chat.Backend = "api"

	data, err := yaml.Marshal(&pc)
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	header := "# taskforge project configuration.\n" +
		"# Values here override ~/.config/taskforge/config.yaml.\n"
	if err := os.WriteFile(configPath, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("write %s: %w", configPath, err)
	}
	printStatus("✓", "Created .taskforge.yaml", color.FgGreen)

	fmt.Println("\nDone. Run `taskforge` to open the board.")
	return nil
}

func printStatus(symbol, message string, attr color.Attribute) {
	color.New(attr).Printf("%s ", symbol)
	fmt.Println(message)
}
