package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/connct/screenagent/internal/config"
	"github.com/connct/screenagent/internal/hub"
	"github.com/connct/screenagent/internal/server"
	"github.com/connct/screenagent/internal/store"
)

// ServeCmd runs the hub server.
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the hub server devices and callers connect to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
				return fmt.Errorf("creating data dir: %w", err)
			}

			st, err := store.Open(cfg.DBPath())
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer st.Close()
			fmt.Printf("[Serve] Using database: %s\n", cfg.DBPath())

			ctx, cancel := signalContext()
			defer cancel()

			hubs := hub.NewSet(ctx, st, cfg.TaskTimeout())
			srv := server.New(hubs, server.Config{
				Addr:      cfg.Server.Addr,
				Token:     cfg.Server.Token,
				RateLimit: cfg.Server.RateLimit,
			})
			return srv.Run(ctx)
		},
	}
}

// loadConfig honors the --config flag, falling back to the data directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal: %v, shutting down\n", sig)
		cancel()
	}()
	return ctx, cancel
}
