// Package cli wires the serve and agent commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// SetupRootCmd builds the root command with all subcommands attached.
func SetupRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "screenagent",
		Short:   "Remote screen automation over a per-user message hub",
		Version: Version,
	}

	root.PersistentFlags().String("config", "", "path to config.yaml (default: data dir)")

	root.AddCommand(ServeCmd())
	root.AddCommand(AgentCmd())
	return root
}

// Execute runs the CLI.
func Execute() {
	if err := SetupRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
