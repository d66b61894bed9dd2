package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"lspup/internal/logx"
	"lspup/internal/notify"
	"lspup/internal/tui"
)

var (
	installForce      bool
	installNoProgress bool
)

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Download or update the managed language server",
		RunE:  runInstall,
	}

	cmd.Flags().BoolVar(&installForce, "force", false, "Re-download even if the installed release is current")
	cmd.Flags().BoolVar(&installNoProgress, "no-progress", false, "Disable interactive progress output")

	return cmd
}

func runInstall(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	app, err := setup()
	if err != nil {
		return err
	}

	if !app.Config.ManagedDownload() {
		return fmt.Errorf("server.exec is set to %s; nothing to install", app.Config.Server.Exec)
	}

	logger, closer, _ := logx.New(app.Paths.LogsDir, "install")
	if logger == nil {
		logger = logx.Discard()
	}
	if closer != nil {
		defer closer.Close()
	}
	app.Installer.Logf = logger.Printf

	if installNoProgress || outputJSON {
		sw := tui.NewStatusWriter(cmd.ErrOrStderr())
		app.Installer.Notify = notify.Multi{sw, notify.LogSink{Logger: logger}}
		_, err = app.Installer.Ensure(ctx, installForce)
		sw.Stop()
	} else {
		err = tui.RunDownload(cmd.ErrOrStderr(), "lspup install", func(sink notify.Sink) error {
			app.Installer.Notify = notify.Multi{sink, notify.LogSink{Logger: logger}}
			_, ensureErr := app.Installer.Ensure(ctx, installForce)
			return ensureErr
		})
	}
	if err != nil {
		logger.Printf("install failed: %v", err)
		return fmt.Errorf("install %s: %w", app.Config.Server.Asset, err)
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

	cmd.Println(tui.SuccessStyle.Render(fmt.Sprintf("%s %s installed", st.Asset, st.Tag)))
	cmd.Println(tui.FaintStyle.Render(st.Path))
	return nil
}
