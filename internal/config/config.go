// Package config handles configuration loading and management for taskforge.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for taskforge.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Plan      PlanConfig      `mapstructure:"plan"`
	Preview   PreviewConfig   `mapstructure:"preview"`
	Chat      ChatConfig      `mapstructure:"chat"`
}

// ServerConfig holds the listen settings for the serve command.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// WorkspaceConfig holds worktree allocation settings.
type WorkspaceConfig struct {
	// BaseDir is the directory under which per-project worktree
	// subdirectories are created.
	BaseDir string `mapstructure:"base_dir"`
	// RebuildCommand, when set, runs in the project directory after each
	// successful merge. Failures are logged, never surfaced.
	RebuildCommand string `mapstructure:"rebuild_command"`
}

// AgentConfig holds settings for the agent CLI.
type AgentConfig struct {
	// Binary is the agent executable name or path.
	Binary string `mapstructure:"binary"`
	// ExtraArgs are appended to every agent invocation.
	ExtraArgs []string `mapstructure:"extra_args"`
}

// PlanConfig holds plan session lifecycle settings.
type PlanConfig struct {
	// IdleTimeout is how long an idle session survives before eviction.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// SweepInterval is how often the eviction sweep runs.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// PreviewConfig holds dev-server preview settings.
type PreviewConfig struct {
	// Command is the shell command that starts the preview server.
	// The allocated port is exposed to it via the PORT env variable.
	Command string `mapstructure:"command"`
	// PortMin and PortMax bound the range probed for a free port.
	PortMin int `mapstructure:"port_min"`
	PortMax int `mapstructure:"port_max"`
}

// ChatConfig holds settings for the project assistant.
type ChatConfig struct {
	// Backend selects how the assistant talks to the model: "api" or "bedrock".
	Backend string `mapstructure:"backend"`
	// Model is the model identifier passed to the backend.
	Model string `mapstructure:"model"`
	// APIKey is the Anthropic API key for the "api" backend.
	APIKey string `mapstructure:"api_key"`
	// AWSRegion and AWSProfile configure the "bedrock" backend.
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
	// HistoryLimit caps how many prior messages are replayed as context.
	HistoryLimit int `mapstructure:"history_limit"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (TASKFORGE_*, ANTHROPIC_API_KEY)
// 2. Project config (.taskforge.yaml in current directory or parent)
// 3. User config (~/.config/taskforge/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := FindProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	bindEnv(v)
	return v
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("TASKFORGE")
	v.AutomaticEnv()

	v.BindEnv("server.host", "TASKFORGE_HOST")
	v.BindEnv("server.port", "TASKFORGE_PORT")
	v.BindEnv("database.path", "TASKFORGE_DB_PATH")
	v.BindEnv("workspace.base_dir", "TASKFORGE_WORKTREE_DIR")
	v.BindEnv("agent.binary", "TASKFORGE_AGENT_BINARY")
	v.BindEnv("chat.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("chat.aws_region", "AWS_REGION")
	v.BindEnv("chat.aws_profile", "AWS_PROFILE")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Chat.APIKey = os.ExpandEnv(cfg.Chat.APIKey)
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8723)

	v.SetDefault("database.path", filepath.Join(getUserDataDir(), "taskforge.db"))
	v.SetDefault("workspace.base_dir", filepath.Join(getUserDataDir(), "worktrees"))

	v.SetDefault("agent.binary", "claude")

	v.SetDefault("plan.idle_timeout", "30m")
	v.SetDefault("plan.sweep_interval", "1m")

	v.SetDefault("preview.command", "npm run dev")
	v.SetDefault("preview.port_min", 4100)
	v.SetDefault("preview.port_max", 4199)

	v.SetDefault("chat.backend", "api")
	v.SetDefault("chat.model", "claude-sonnet-4-5")
	v.SetDefault("chat.history_limit", 50)
}

// getUserConfigDir returns the XDG config directory for taskforge.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "taskforge")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "taskforge")
	}
	return filepath.Join(home, ".config", "taskforge")
}

// getUserDataDir returns the XDG data directory for taskforge.
func getUserDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "taskforge")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", "taskforge")
	}
	return filepath.Join(home, ".local", "share", "taskforge")
}

// FindProjectConfig searches for .taskforge.yaml in the current directory and parents.
func FindProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".taskforge.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8723,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(getUserDataDir(), "taskforge.db"),
		},
		Workspace: WorkspaceConfig{
			BaseDir: filepath.Join(getUserDataDir(), "worktrees"),
		},
		Agent: AgentConfig{
			Binary: "claude",
		},
		Plan: PlanConfig{
			IdleTimeout:   30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Preview: PreviewConfig{
			Command: "npm run dev",
			PortMin: 4100,
			PortMax: 4199,
		},
		Chat: ChatConfig{
			Backend:      "api",
			Model:        "claude-sonnet-4-5",
			HistoryLimit: 50,
		},
	}
}
