package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAgentConfig_DefaultsWhenNoConfigFile(t *testing.T) {
	cfg, err := LoadAgentConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8090", cfg.AppHubURL)
	assert.Equal(t, 9191, cfg.ListenPort)
	assert.Equal(t, "./workspaces", cfg.WorkspaceRoot)
	assert.Equal(t, "graymoon-agent.db", cfg.DatabaseURL)
	assert.False(t, cfg.Debug)
	assert.GreaterOrEqual(t, cfg.MaxConcurrentCommands, 8)
}

func TestLoadAgentConfig_EnvVarOverridesDefault(t *testing.T) {
	t.Setenv("GRAYMOON_AGENT_APP_HUB_URL", "https://control.example.com")
	t.Setenv("GRAYMOON_AGENT_DEBUG", "true")

	cfg, err := LoadAgentConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "https://control.example.com", cfg.AppHubURL)
	assert.True(t, cfg.Debug)
}

func TestLoadControlConfig_DefaultsWhenNoConfigFile(t *testing.T) {
	cfg, err := LoadControlConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.ListenAddr)
	assert.Equal(t, "graymoon-control.db", cfg.DatabaseURL)
	assert.Equal(t, 8, cfg.Workspace.MaxConcurrentGitOperations)
	assert.Equal(t, 1.0, cfg.Workspace.PushWaitDependencyTimeoutMinutesPerDependency)
	assert.Equal(t, 8, cfg.Sync.MaxConcurrency)
	assert.True(t, cfg.Sync.EnableDeduplication)
}

func TestLoadControlConfig_EnvVarOverridesTopLevelField(t *testing.T) {
	t.Setenv("GRAYMOON_DEBUG", "true")

	cfg, err := LoadControlConfig(t.TempDir())
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
}

func TestPushWaitTimeout_ScalesWithDependencyCount(t *testing.T) {
	w := WorkspaceConfig{PushWaitDependencyTimeoutMinutesPerDependency: 2.0}
	assert.Equal(t, 6*time.Minute, w.PushWaitTimeout(3))
	assert.Equal(t, time.Duration(0), w.PushWaitTimeout(0))
}
