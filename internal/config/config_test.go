package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8420", cfg.Server.Addr)
	assert.Equal(t, 120, cfg.Server.TaskTimeoutSeconds)
	assert.Equal(t, 30, cfg.Server.RateLimit)
	assert.Equal(t, 20, cfg.Agent.MaxSteps)
	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoadFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: ":9000"
  rate_limit: 5
device:
  name: workbench
  hub_url: ws://hub.example:9000/ws/device
provider:
  name: openai
  model: gpt-5
agent:
  max_steps: 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Server.RateLimit)
	// Unset fields keep their defaults.
	assert.Equal(t, 120, cfg.Server.TaskTimeoutSeconds)
	assert.Equal(t, "workbench", cfg.Device.Name)
	assert.Equal(t, "workbench", cfg.DeviceName())
	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, "gpt-5", cfg.Provider.Model)
	assert.Equal(t, 8, cfg.Agent.MaxSteps)
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("TEST_HUB_TOKEN", "sekrit")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
device:
  token: ${TEST_HUB_TOKEN}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "sekrit", cfg.Device.Token)
}

func TestProviderKeyFallsBackToEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  name: openai\n"), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Device.Name = "workbench"
	require.NoError(t, cfg.Save())

	loaded, err := LoadFrom(filepath.Join(cfg.DataDir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "workbench", loaded.Device.Name)
	assert.Equal(t, cfg.Server.Addr, loaded.Server.Addr)
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
