// Package config handles configuration loading and management for codex-cv.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for codex-cv.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Subagents SubagentsConfig `mapstructure:"subagents"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	History   HistoryConfig   `mapstructure:"history"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// SubagentsConfig holds the subagent feature settings.
type SubagentsConfig struct {
	// Enabled gates every subagent operation. When false, run refuses to
	// dispatch and explains how to turn the feature on.
	Enabled bool `mapstructure:"enabled"`
	// AutoRoute picks a subagent from the task text when none is named.
	AutoRoute bool `mapstructure:"auto_route"`
	// AttemptTimeout bounds a single delegation attempt.
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	// MaxRetries is the number of additional attempts after a failure.
	MaxRetries int `mapstructure:"max_retries"`
	// UserDir is the directory holding user-level subagent specs.
	UserDir string `mapstructure:"user_dir"`
	// ProjectDir is the directory holding project-level subagent specs,
	// relative to the project root.
	ProjectDir string `mapstructure:"project_dir"`
}

// EngineConfig holds model backend settings.
type EngineConfig struct {
	// Model is the session-default model. Empty defers to the backend.
	Model string `mapstructure:"model"`
	// MaxTokens bounds each model response.
	MaxTokens int64 `mapstructure:"max_tokens"`
	// UseBedrock routes requests through AWS Bedrock instead of the
	// Anthropic API.
	UseBedrock bool `mapstructure:"use_bedrock"`
	// AWSRegion is the Bedrock region, e.g. "us-west-2".
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS shared-config profile.
	AWSProfile string `mapstructure:"aws_profile"`
}

// SandboxConfig holds sandbox policy settings.
type SandboxConfig struct {
	// Profile names the sandbox profile to run subagents under. Empty
	// selects a profile from the environment.
	Profile string `mapstructure:"profile"`
	// PolicyFile is an optional YAML file with extra profiles.
	PolicyFile string `mapstructure:"policy_file"`
}

// TelemetryConfig holds execution metrics settings.
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// HistoryConfig holds run ledger settings.
type HistoryConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, CODEX_SUBAGENTS_ENABLED)
// 2. Project config (.codex/config.yaml in current directory or parent)
// 3. User config (~/.config/codex-cv/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("")

	// Map specific environment variables
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("subagents.enabled", "CODEX_SUBAGENTS_ENABLED")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("subagents.enabled", cfg.Subagents.Enabled)
	v.Set("subagents.auto_route", cfg.Subagents.AutoRoute)
	v.Set("subagents.attempt_timeout", cfg.Subagents.AttemptTimeout.String())
	v.Set("subagents.max_retries", cfg.Subagents.MaxRetries)
	v.Set("subagents.user_dir", cfg.Subagents.UserDir)
	v.Set("subagents.project_dir", cfg.Subagents.ProjectDir)
	v.Set("engine.model", cfg.Engine.Model)
	v.Set("engine.max_tokens", cfg.Engine.MaxTokens)
	v.Set("engine.use_bedrock", cfg.Engine.UseBedrock)
	v.Set("engine.aws_region", cfg.Engine.AWSRegion)
	v.Set("engine.aws_profile", cfg.Engine.AWSProfile)
	v.Set("sandbox.profile", cfg.Sandbox.Profile)
	v.Set("sandbox.policy_file", cfg.Sandbox.PolicyFile)
	v.Set("telemetry.enabled", cfg.Telemetry.Enabled)
	v.Set("telemetry.db_path", cfg.Telemetry.DBPath)
	v.Set("history.db_path", cfg.History.DBPath)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// UserAgentsDir returns the default directory for user-level subagent specs.
func UserAgentsDir() string {
	return filepath.Join(getUserConfigDir(), "agents")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Anthropic defaults
	v.SetDefault("anthropic.api_key", "")

	// Subagent defaults
	v.SetDefault("subagents.enabled", false)
	v.SetDefault("subagents.auto_route", true)
	v.SetDefault("subagents.attempt_timeout", "300s")
	v.SetDefault("subagents.max_retries", 2)
	v.SetDefault("subagents.user_dir", UserAgentsDir())
	v.SetDefault("subagents.project_dir", filepath.Join(".codex", "agents"))

	// Engine defaults
	v.SetDefault("engine.model", "")
	v.SetDefault("engine.max_tokens", 8192)
	v.SetDefault("engine.use_bedrock", false)
	v.SetDefault("engine.aws_region", "")
	v.SetDefault("engine.aws_profile", "")

	// Sandbox defaults
	v.SetDefault("sandbox.profile", "")
	v.SetDefault("sandbox.policy_file", "")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.db_path", filepath.Join(getUserConfigDir(), "telemetry.db"))

	// History defaults
	v.SetDefault("history.db_path", filepath.Join(getUserConfigDir(), "history.db"))
}

// getUserConfigDir returns the XDG config directory for codex-cv.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "codex-cv")
	}

	// Fall back to ~/.config/codex-cv
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "codex-cv")
	}
	return filepath.Join(home, ".config", "codex-cv")
}

// findProjectConfig searches for .codex/config.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".codex", "config.yaml")
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

// ProjectRoot returns the directory containing the project config, or the
// current directory when no project config exists.
func ProjectRoot() string {
	if p := findProjectConfig(); p != "" {
		return filepath.Dir(filepath.Dir(p))
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			APIKey: "",
		},
		Subagents: SubagentsConfig{
			Enabled:        false,
			AutoRoute:      true,
			AttemptTimeout: 300 * time.Second,
			MaxRetries:     2,
			UserDir:        UserAgentsDir(),
			ProjectDir:     filepath.Join(".codex", "agents"),
		},
		Engine: EngineConfig{
			Model:     "",
			MaxTokens: 8192,
		},
		Sandbox: SandboxConfig{
			Profile:    "",
			PolicyFile: "",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
			DBPath:  filepath.Join(getUserConfigDir(), "telemetry.db"),
		},
		History: HistoryConfig{
			DBPath: filepath.Join(getUserConfigDir(), "history.db"),
		},
	}
}
