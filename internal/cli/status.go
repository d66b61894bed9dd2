package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the installed server release",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	app, err := setup()
	if err != nil {
		return err
	}

	if !app.Config.ManagedDownload() {
		cmd.Printf("server: %s (user override)\n", app.Config.Server.Exec)
		return nil
	}

	st, err := app.Installer.CurrentStatus()
	if err != nil {
		return err
	}

	if outputJSON {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("%-12s %s\n", "Repo", app.Config.Server.Repo)
	cmd.Printf("%-12s %s\n", "Asset", st.Asset)
	if !st.Installed {
		cmd.Printf("%-12s %s\n", "Installed", "no")
		return nil
	}
	cmd.Printf("%-12s %s\n", "Installed", "yes")
	if st.Tag != "" {
		cmd.Printf("%-12s %s\n", "Release", st.Tag)
		cmd.Printf("%-12s %s\n", "Downloaded", st.DownloadedAt.Format(time.RFC3339))
	}
	cmd.Printf("%-12s %s\n", "Path", st.Path)
	return nil
}
