// Package lifecycle owns the managed language-server subprocess. At most
// one server session is current at a time; every transition goes through
// the Manager so a deliberate restart is never mistaken for a crash.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"

	"lspup/internal/notify"
)

// State is the lifecycle state of the server session.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrSessionClosed marks an unexpected server exit outside a deliberate
// stop or restart.
var ErrSessionClosed = errors.New("server session closed unexpectedly")

// Config wires a Manager's collaborators.
type Config struct {
	// ExecOverride, when non-empty, is a user-supplied server path that
	// takes precedence over the managed install.
	ExecOverride string
	// ResolveExec returns the managed binary path, installing it first if
	// needed. Unused when ExecOverride is set.
	ResolveExec func(ctx context.Context) (string, error)

	// Subcommand is the fixed first argument; Args follow it.
	Subcommand string
	Args       []string

	// Handler receives traffic initiated by the server. Nil installs a
	// handler that logs and drops notifications and rejects requests.
	Handler jsonrpc2.Handler

	// Initialize performs the LSP initialize/initialized handshake during
	// Start. Leave false when an editor on the other side of a relay
	// drives the session itself.
	Initialize bool
	RootURI    lsp.DocumentURI

	// StopTimeout bounds the graceful shutdown before the process is
	// forcefully killed.
	StopTimeout time.Duration

	// Stderr receives the server's stderr output, typically a log file.
	Stderr io.Writer

	Logf   func(format string, args ...any)
	Notify notify.Sink
}

// Manager owns at most one running server/connection pair.
type Manager struct {
	cfg    Config
	launch launchFunc

	mu         sync.Mutex
	state      State
	restarting bool
	gen        int
	conn       *jsonrpc2.Conn
	exited     chan struct{}
	kill       func() error
	lastErr    error
}

// NewManager builds a stopped manager. Missing optional config fields are
// given safe defaults.
func NewManager(cfg Config) *Manager {
	if cfg.Logf == nil {
		cfg.Logf = func(string, ...any) {}
	}
	if cfg.Notify == nil {
		cfg.Notify = notify.Discard{}
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 3 * time.Second
	}
	if cfg.Stderr == nil {
		cfg.Stderr = io.Discard
	}
	return &Manager{cfg: cfg, launch: spawnProcess}
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the terminal error of the last session, if any.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Conn returns the live protocol connection, or nil when not running.
func (m *Manager) Conn() *jsonrpc2.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Start resolves the executable, launches it, and establishes the protocol
// session. A session that is already current is fully stopped first.
// Failures are logged and reported to the notification sink as well as
// returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateStopped {
		m.mu.Unlock()
		if err := m.Stop(ctx); err != nil {
			m.cfg.Logf("stop before start: %v", err)
		}
		m.mu.Lock()
	}
	m.state = StateStarting
	m.lastErr = nil
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	if err := m.startSession(ctx, gen); err != nil {
		m.mu.Lock()
		m.state = StateStopped
		m.lastErr = err
		m.mu.Unlock()
		m.cfg.Logf("start failed: %v", err)
		m.cfg.Notify.Errorf("language server failed to start: %v", err)
		return err
	}
	return nil
}

func (m *Manager) startSession(ctx context.Context, gen int) error {
	path, err := m.resolveExec(ctx)
	if err != nil {
		return err
	}

	args := append([]string{m.cfg.Subcommand}, m.cfg.Args...)
	stream, wait, kill, err := m.launch(ctx, path, args, m.cfg.Stderr)
	if err != nil {
		return err
	}

	exited := make(chan struct{})
	go func() {
		if werr := wait(); werr != nil {
			m.cfg.Logf("server process exited: %v", werr)
		}
		close(exited)
	}()

	conn := jsonrpc2.NewConn(context.Background(),
		jsonrpc2.NewBufferedStream(stream, jsonrpc2.VSCodeObjectCodec{}),
		m.serverHandler())

	if m.cfg.Initialize {
		if err := m.handshake(ctx, conn); err != nil {
			conn.Close()
			_ = kill()
			<-exited
			return err
		}
	}

	m.mu.Lock()
	m.conn = conn
	m.exited = exited
	m.kill = kill
	m.state = StateRunning
	m.mu.Unlock()

	go m.watch(gen, conn)

	m.cfg.Logf("server started: %s %v", path, args)
	return nil
}

func (m *Manager) resolveExec(ctx context.Context) (string, error) {
	if m.cfg.ExecOverride != "" {
		if _, err := os.Stat(m.cfg.ExecOverride); err != nil {
			return "", fmt.Errorf("configured server executable: %w", err)
		}
		return m.cfg.ExecOverride, nil
	}
	if m.cfg.ResolveExec == nil {
		return "", errors.New("no server executable configured")
	}
	path, err := m.cfg.ResolveExec(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve server executable: %w", err)
	}
	return path, nil
}

func (m *Manager) handshake(ctx context.Context, conn *jsonrpc2.Conn) error {
	params := lsp.InitializeParams{
		ProcessID:    os.Getpid(),
		RootURI:      m.cfg.RootURI,
		Capabilities: lsp.ClientCapabilities{},
	}
	var result lsp.InitializeResult
	if err := conn.Call(ctx, "initialize", params, &result); err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	if err := conn.Notify(ctx, "initialized", struct{}{}); err != nil {
		return fmt.Errorf("notify initialized: %w", err)
	}
	return nil
}

// watch fires the crash policy when the connection drops outside a
// deliberate stop or restart: the failure is terminal for the session and
// no automatic restart is attempted.
func (m *Manager) watch(gen int, conn *jsonrpc2.Conn) {
	<-conn.DisconnectNotify()

	m.mu.Lock()
	if m.gen != gen || m.state != StateRunning || m.restarting {
		m.mu.Unlock()
		return
	}
	m.state = StateStopped
	m.lastErr = ErrSessionClosed
	m.conn = nil
	kill := m.kill
	m.kill = nil
	exited := m.exited
	m.exited = nil
	m.mu.Unlock()

	m.cfg.Logf("session closed unexpectedly; not restarting")
	m.cfg.Notify.Errorf("language server exited unexpectedly")

	if kill != nil {
		_ = kill()
	}
	if exited != nil {
		<-exited
	}
}

// Stop requests a graceful shutdown and waits up to StopTimeout for the
// process to exit, killing it on timeout. Resources are released on every
// path. Stopping an already stopped manager is a no-op.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateStopped {
		m.mu.Unlock()
		return nil
	}
	m.state = StateStopping
	conn := m.conn
	kill := m.kill
	exited := m.exited
	m.conn = nil
	m.kill = nil
	m.exited = nil
	m.mu.Unlock()

	if conn != nil {
		sctx, cancel := context.WithTimeout(ctx, m.cfg.StopTimeout)
		if err := conn.Call(sctx, "shutdown", nil, nil); err != nil {
			m.cfg.Logf("shutdown request: %v", err)
		}
		if err := conn.Notify(sctx, "exit", nil); err != nil {
			m.cfg.Logf("exit notification: %v", err)
		}
		cancel()
		conn.Close()
	}

	if exited != nil {
		select {
		case <-exited:
		case <-time.After(m.cfg.StopTimeout):
			m.cfg.Logf("graceful stop timed out; killing server process")
			if kill != nil {
				_ = kill()
			}
			<-exited
		}
	}

	m.mu.Lock()
	m.state = StateStopped
	m.mu.Unlock()
	m.cfg.Logf("server stopped")
	return nil
}

// Restart stops the current session to completion, then starts a new one.
// The restarting flag keeps the disconnect that stop provokes from being
// treated as a crash.
func (m *Manager) Restart(ctx context.Context) error {
	m.mu.Lock()
	m.restarting = true
	m.mu.Unlock()

	err := m.Stop(ctx)

	m.mu.Lock()
	m.restarting = false
	m.mu.Unlock()

	if err != nil {
		return err
	}
	return m.Start(ctx)
}

// FormatDocument issues a single formatting request. Errors are logged and
// swallowed: one failed request returns no edits, it never ends the
// session.
func (m *Manager) FormatDocument(ctx context.Context, uri lsp.DocumentURI) []lsp.TextEdit {
	m.mu.Lock()
	conn := m.conn
	state := m.state
	m.mu.Unlock()

	if state != StateRunning || conn == nil {
		m.cfg.Logf("formatting requested while %s", state)
		return nil
	}

	params := lsp.DocumentFormattingParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
		Options:      lsp.FormattingOptions{TabSize: 4, InsertSpaces: true},
	}
	var edits []lsp.TextEdit
	if err := conn.Call(ctx, "textDocument/formatting", params, &edits); err != nil {
		m.cfg.Logf("formatting request failed: %v", err)
		return nil
	}
	return edits
}

func (m *Manager) serverHandler() jsonrpc2.Handler {
	if m.cfg.Handler != nil {
		return m.cfg.Handler
	}
	return jsonrpc2.AsyncHandler(dropHandler{logf: m.cfg.Logf})
}

// dropHandler logs server-initiated notifications and rejects requests.
type dropHandler struct {
	logf func(format string, args ...any)
}

func (h dropHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if req.Notif {
		h.logf("server notification: %s", req.Method)
		return
	}
	err := conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{
		Code:    jsonrpc2.CodeMethodNotFound,
		Message: "no client attached",
	})
	if err != nil {
		h.logf("reply to %s: %v", req.Method, err)
	}
}
