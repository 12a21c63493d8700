// Package config loads the YAML configuration shared by the serve and agent
// commands.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds settings for both sides of the system: the hub server and
// the device agent.
type Config struct {
	// DataDir is where the database and any local state live.
	DataDir string `yaml:"data_dir"`

	// Server settings (serve command).
	Server ServerConfig `yaml:"server"`

	// Device settings (agent command).
	Device DeviceConfig `yaml:"device"`

	// Model provider settings.
	Provider ProviderConfig `yaml:"provider"`

	// Agent loop settings.
	Agent AgentConfig `yaml:"agent"`
}

// ServerConfig holds the hub server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"` // listen address
	// Token, when set, is required as a Bearer token on every request.
	Token string `yaml:"token"`
	// TaskTimeoutSeconds bounds one task round trip (default: 120).
	TaskTimeoutSeconds int `yaml:"task_timeout_seconds"`
	// RateLimit is the per-user POST /message budget, requests per minute.
	RateLimit int `yaml:"rate_limit"`
}

// DeviceConfig holds the device agent's connection settings.
type DeviceConfig struct {
	// Name identifies this device on the hub. Empty defaults to hostname.
	Name string `yaml:"name"`
	// HubURL is the hub's device websocket endpoint.
	HubURL string `yaml:"hub_url"`
	// Token authenticates against the hub when the server requires one.
	Token string `yaml:"token"`
}

// ProviderConfig selects and configures the model provider.
type ProviderConfig struct {
	// Name is "openai" or "anthropic".
	Name   string `yaml:"name"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// AgentConfig holds agent loop settings.
type AgentConfig struct {
	// MaxSteps caps model calls per task (default: 20).
	MaxSteps int `yaml:"max_steps"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Server: ServerConfig{
			Addr:               ":8420",
			TaskTimeoutSeconds: 120,
			RateLimit:          30,
		},
		Device: DeviceConfig{
			HubURL: "ws://localhost:8420/ws/device",
		},
		Provider: ProviderConfig{
			Name: "anthropic",
		},
		Agent: AgentConfig{
			MaxSteps: 20,
		},
	}
}

// DefaultDataDir returns the platform data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".screenagent"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "screenagent")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "screenagent")
		}
		return filepath.Join(home, "screenagent")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "screenagent")
		}
		return filepath.Join(home, ".local", "share", "screenagent")
	}
}

// Load reads config.yaml from the data directory. A missing file yields the
// defaults. A .env file in the working directory is loaded first so ${VAR}
// references in the config resolve.
func Load() (*Config, error) {
	godotenv.Load()
	cfg := DefaultConfig()

	path := filepath.Join(cfg.DataDir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.expand()
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.expand()
	return cfg, nil
}

// LoadFrom reads config from a specific path.
func LoadFrom(path string) (*Config, error) {
	godotenv.Load()
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.expand()
	return cfg, nil
}

// Save writes the config to the data directory's config.yaml.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.DataDir, "config.yaml"), data, 0600)
}

// DBPath returns the path to the SQLite database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "screenagent.db")
}

// TaskTimeout returns the server task timeout as a duration.
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.Server.TaskTimeoutSeconds) * time.Second
}

// DeviceName returns the configured device name, falling back to hostname.
func (c *Config) DeviceName() string {
	if c.Device.Name != "" {
		return c.Device.Name
	}
	host, err := os.Hostname()
	if err != nil {
		return "device"
	}
	return host
}

// expand resolves ~ in DataDir and ${VAR} references in secrets and URLs.
func (c *Config) expand() {
	if strings.HasPrefix(c.DataDir, "~/") {
		home, _ := os.UserHomeDir()
		c.DataDir = filepath.Join(home, c.DataDir[2:])
	}
	c.Server.Token = os.ExpandEnv(c.Server.Token)
	c.Device.Token = os.ExpandEnv(c.Device.Token)
	c.Device.HubURL = os.ExpandEnv(c.Device.HubURL)
	c.Provider.APIKey = os.ExpandEnv(c.Provider.APIKey)

	// Fall back to the conventional env vars when no key is configured.
	if c.Provider.APIKey == "" {
		switch c.Provider.Name {
		case "openai":
			c.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			c.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
}
