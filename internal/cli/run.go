package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/spf13/cobra"

	"lspup/internal/lifecycle"
	"lspup/internal/logx"
	"lspup/internal/notify"
	"lspup/internal/relay"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the language server and relay LSP traffic over stdio",
		Long: `run installs the configured server if needed, starts it as a
subprocess, and relays LSP messages between the editor on stdin/stdout
and the server. SIGHUP restarts the server; SIGINT and SIGTERM shut it
down gracefully. All diagnostics go to the log file, never to stdout.`,
		RunE: runServer,
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := setup()
	if err != nil {
		return err
	}

	// stdout belongs to the editor from here on. Everything human-readable
	// goes to the log file.
	logger, closer, _ := logx.New(app.Paths.LogsDir, "run")
	if logger == nil {
		logger = logx.Discard()
	}
	if closer != nil {
		defer closer.Close()
	}
	sink := notify.LogSink{Logger: logger}

	app.Installer.Logf = logger.Printf
	app.Installer.Notify = sink

	// The editor connection does not exist yet when the manager is built;
	// the forwarder looks it up per message so traffic started by the
	// server finds the editor once both sides are up.
	var (
		mu         sync.Mutex
		editorConn *jsonrpc2.Conn
	)
	editor := func() *jsonrpc2.Conn {
		mu.Lock()
		defer mu.Unlock()
		return editorConn
	}

	mgr := lifecycle.NewManager(lifecycle.Config{
		ExecOverride: app.Config.Server.Exec,
		ResolveExec: func(ctx context.Context) (string, error) {
			return app.Installer.Ensure(ctx, false)
		},
		Subcommand:  app.Config.Server.Subcommand,
		Args:        app.Config.Server.Args,
		Handler:     relay.Forwarder(editor, logger.Printf),
		StopTimeout: time.Duration(app.Config.Server.StopTimeoutSec) * time.Second,
		Stderr:      logger.Writer(),
		Logf:        logger.Printf,
		Notify:      sink,
	})

	if err := mgr.Start(ctx); err != nil {
		return err
	}

	conn := relay.NewConn(ctx, relay.Stdio{}, relay.Forwarder(mgr.Conn, logger.Printf))
	mu.Lock()
	editorConn = conn
	mu.Unlock()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	for {
		select {
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				logger.Printf("SIGHUP received; restarting server")
				if err := mgr.Restart(ctx); err != nil {
					logger.Printf("restart failed: %v", err)
				}
				continue
			}
			logger.Printf("%v received; shutting down", sig)
			return mgr.Stop(ctx)
		case <-conn.DisconnectNotify():
			logger.Printf("editor disconnected; shutting down")
			return mgr.Stop(ctx)
		case <-ctx.Done():
			return mgr.Stop(context.Background())
		}
	}
}
