// Package config loads Agent and Control configuration with viper, binding
// every option in spec §6 to an environment variable so either binary can
// run unmodified in a container.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// AgentConfig holds the settings recognised by the Agent binary.
type AgentConfig struct {
	AppHubURL             string `mapstructure:"app_hub_url"`
	ListenPort            int    `mapstructure:"listen_port"`
	MaxConcurrentCommands int    `mapstructure:"max_concurrent_commands"`
	WorkspaceRoot         string `mapstructure:"workspace_root"`
	DatabaseURL           string `mapstructure:"database_url"`
	Debug                 bool   `mapstructure:"debug"`
}

// WorkspaceConfig holds the Control-side Workspace.* options.
type WorkspaceConfig struct {
	MaxConcurrentGitOperations               int     `mapstructure:"max_concurrent_git_operations"`
	PushWaitDependencyTimeoutMinutesPerDependency float64 `mapstructure:"push_wait_dependency_timeout_minutes_per_dependency"`
	PostCommitHookBaseURL                    string  `mapstructure:"post_commit_hook_base_url"`
	PostCommitHookPort                       int     `mapstructure:"post_commit_hook_port"`
}

// SyncConfig holds the Control-side Sync.* options.
type SyncConfig struct {
	MaxConcurrency      int  `mapstructure:"max_concurrency"`
	EnableDeduplication bool `mapstructure:"enable_deduplication"`
}

// ControlConfig holds the settings recognised by the Control binary.
type ControlConfig struct {
	ListenAddr  string          `mapstructure:"listen_addr"`
	DatabaseURL string          `mapstructure:"database_url"`
	Workspace   WorkspaceConfig `mapstructure:"workspace"`
	Sync        SyncConfig      `mapstructure:"sync"`
	Debug       bool            `mapstructure:"debug"`
}

func defaultWorkerCount() int {
	n := 2 * runtime.NumCPU()
	if n < 8 {
		return 8
	}
	return n
}

// LoadAgentConfig builds a viper instance bound to GRAYMOON_AGENT_* env vars
// and an optional config.yaml search path, the way the teacher's
// internal/config.Load() wires viper.BindEnv per field.
func LoadAgentConfig(configPath string) (*AgentConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("GRAYMOON_AGENT")
	v.AutomaticEnv()

	v.SetDefault("app_hub_url", "http://127.0.0.1:8090")
	v.SetDefault("listen_port", 9191)
	v.SetDefault("max_concurrent_commands", defaultWorkerCount())
	v.SetDefault("workspace_root", "./workspaces")
	v.SetDefault("database_url", "graymoon-agent.db")
	v.SetDefault("debug", false)

	for _, key := range []string{"app_hub_url", "listen_port", "max_concurrent_commands", "workspace_root", "database_url", "debug"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read agent config: %w", err)
		}
	}

	var cfg AgentConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent config: %w", err)
	}
	return &cfg, nil
}

// LoadControlConfig mirrors LoadAgentConfig for the Control binary.
func LoadControlConfig(configPath string) (*ControlConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("GRAYMOON")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8090")
	v.SetDefault("database_url", "graymoon-control.db")
	v.SetDefault("workspace.max_concurrent_git_operations", 8)
	v.SetDefault("workspace.push_wait_dependency_timeout_minutes_per_dependency", 1.0)
	v.SetDefault("workspace.post_commit_hook_base_url", "http://127.0.0.1")
	v.SetDefault("workspace.post_commit_hook_port", 9191)
	v.SetDefault("sync.max_concurrency", 8)
	v.SetDefault("sync.enable_deduplication", true)
	v.SetDefault("debug", false)

	for _, key := range []string{
		"listen_addr", "database_url",
		"workspace.max_concurrent_git_operations",
		"workspace.push_wait_dependency_timeout_minutes_per_dependency",
		"workspace.post_commit_hook_base_url",
		"workspace.post_commit_hook_port",
		"sync.max_concurrency", "sync.enable_deduplication", "debug",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read control config: %w", err)
		}
	}

	var cfg ControlConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal control config: %w", err)
	}
	return &cfg, nil
}

// PushWaitTimeout computes N x timeoutPerDependency as a time.Duration, per
// spec §4.11's wait-for-packages timeout.
func (w WorkspaceConfig) PushWaitTimeout(n int) time.Duration {
	minutes := w.PushWaitDependencyTimeoutMinutesPerDependency * float64(n)
	return time.Duration(minutes * float64(time.Minute))
}
