package cli

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/connct/screenagent/internal/agent/ai"
	"github.com/connct/screenagent/internal/agent/loop"
	"github.com/connct/screenagent/internal/agent/tools"
	"github.com/connct/screenagent/internal/config"
	"github.com/connct/screenagent/internal/device"
)

// AgentCmd runs the device agent: connect to the hub, take tasks, drive the
// screen.
func AgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run the device agent that executes tasks on this machine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			provider, err := buildProvider(cfg)
			if err != nil {
				return err
			}

			registry := tools.NewRegistry()
			desktop := tools.NewDesktopTool(tools.NewAutomator())
			registry.Register(desktop)
			registry.Register(tools.NewShellTool())

			handler := func(ctx context.Context, content string, log func(string)) (string, error) {
				l := loop.New(provider, registry, desktop,
					loop.Callbacks{OnLog: log},
					loop.WithMaxSteps(cfg.Agent.MaxSteps),
					loop.WithModel(cfg.Provider.Model),
				)
				return l.Run(ctx, content)
			}

			client := device.New(cfg.Device.HubURL, cfg.DeviceName(), runtime.GOOS, cfg.Device.Token, handler)

			ctx, cancel := signalContext()
			defer cancel()
			fmt.Printf("[Agent] Device %q connecting to %s (provider: %s)\n",
				cfg.DeviceName(), cfg.Device.HubURL, provider.ID())
			err = client.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func buildProvider(cfg *config.Config) (ai.Provider, error) {
	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", cfg.Provider.Name)
	}
	switch cfg.Provider.Name {
	case "openai":
		return ai.NewOpenAIProvider(cfg.Provider.APIKey, cfg.Provider.Model), nil
	case "anthropic":
		return ai.NewAnthropicProvider(cfg.Provider.APIKey, cfg.Provider.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want openai or anthropic)", cfg.Provider.Name)
	}
}
