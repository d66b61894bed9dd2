package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	outputJSON bool
)

// Execute runs the root cobra command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lspup",
		Short: "Keep a language server installed and running",
		Long: `lspup downloads a prebuilt language server from its GitHub
release feed, keeps it up to date, and relays LSP traffic between an
editor on stdin/stdout and the server subprocess.`,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to lspup.yaml (defaults to the data directory)")
	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newInstallCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}
