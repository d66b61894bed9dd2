package lifecycle

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"

	"lspup/internal/notify"
)

// fakeServer speaks just enough LSP over the far end of a pipe to exercise
// the manager: it answers initialize and shutdown, and exits on the exit
// notification.
type fakeServer struct {
	conn *jsonrpc2.Conn

	mu            sync.Mutex
	ignoreStop    bool
	formatFails   bool
	shutdownSeen  bool
	exitRequested chan struct{}
}

func newFakeServer(stream io.ReadWriteCloser) *fakeServer {
	s := &fakeServer{exitRequested: make(chan struct{})}
	s.conn = jsonrpc2.NewConn(context.Background(),
		jsonrpc2.NewBufferedStream(stream, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.AsyncHandler(jsonrpc2.HandlerWithError(s.handle)))
	return s
}

func (s *fakeServer) handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	s.mu.Lock()
	ignore := s.ignoreStop
	formatFails := s.formatFails
	s.mu.Unlock()

	switch req.Method {
	case "initialize":
		return lsp.InitializeResult{}, nil
	case "initialized":
		return nil, nil
	case "shutdown":
		if ignore {
			select {} // never answer; forces the stop timeout path
		}
		s.mu.Lock()
		s.shutdownSeen = true
		s.mu.Unlock()
		return nil, nil
	case "exit":
		if !ignore {
			close(s.exitRequested)
			s.conn.Close()
		}
		return nil, nil
	case "textDocument/formatting":
		if formatFails {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: "boom"}
		}
		return []lsp.TextEdit{{NewText: "formatted"}}, nil
	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: req.Method}
	}
}

// recordingSink captures notifications for assertions.
type recordingSink struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

func (s *recordingSink) Progress(notify.Update) {}

func (s *recordingSink) Infof(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos = append(s.infos, format)
}

func (s *recordingSink) Errorf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, format)
}

func (s *recordingSink) errorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errors)
}

type testHarness struct {
	manager *Manager
	sink    *recordingSink

	mu     sync.Mutex
	server *fakeServer
	killed bool
}

// newHarness builds a manager whose launch seam hands back one end of an
// in-memory pipe with a fake server on the other end.
func newHarness(t *testing.T, mutate func(*fakeServer)) *testHarness {
	t.Helper()

	h := &testHarness{sink: &recordingSink{}}
	h.manager = NewManager(Config{
		ResolveExec: func(context.Context) (string, error) { return "/fake/server", nil },
		Subcommand:  "server",
		Initialize:  true,
		StopTimeout: 200 * time.Millisecond,
		Notify:      h.sink,
		Logf:        t.Logf,
	})
	h.manager.launch = func(_ context.Context, _ string, _ []string, _ io.Writer) (io.ReadWriteCloser, func() error, func() error, error) {
		client, server := net.Pipe()
		fs := newFakeServer(server)
		if mutate != nil {
			mutate(fs)
		}
		h.mu.Lock()
		h.server = fs
		h.mu.Unlock()

		killedCh := make(chan struct{})
		var killOnce sync.Once

		fs.mu.Lock()
		ignoring := fs.ignoreStop
		fs.mu.Unlock()

		wait := func() error {
			if ignoring {
				// A hung process only goes away when killed.
				<-killedCh
				return nil
			}
			select {
			case <-fs.exitRequested:
			case <-fs.conn.DisconnectNotify():
			}
			return nil
		}
		kill := func() error {
			killOnce.Do(func() {
				h.mu.Lock()
				h.killed = true
				h.mu.Unlock()
				close(killedCh)
				fs.conn.Close()
			})
			return nil
		}
		return client, wait, kill, nil
	}
	return h
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("manager never reached %s, stuck at %s", want, m.State())
}

func TestStartThenStop(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if err := h.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := h.manager.State(); got != StateRunning {
		t.Fatalf("expected running, got %s", got)
	}

	if err := h.manager.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := h.manager.State(); got != StateStopped {
		t.Fatalf("expected stopped, got %s", got)
	}
	if h.sink.errorCount() != 0 {
		t.Fatalf("deliberate stop raised error notifications: %v", h.sink.errors)
	}
}

func TestStopWhenStoppedIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.manager.Stop(context.Background()); err != nil {
		t.Fatalf("Stop on stopped manager: %v", err)
	}
}

func TestRestartDoesNotTripCrashPolicy(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if err := h.manager.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.manager.Restart(ctx); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if got := h.manager.State(); got != StateRunning {
		t.Fatalf("expected running after restart, got %s", got)
	}
	// Give any stale disconnect watcher a moment to misfire.
	time.Sleep(50 * time.Millisecond)
	if h.sink.errorCount() != 0 {
		t.Fatalf("restart raised crash notifications: %v", h.sink.errors)
	}
	if err := h.manager.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestUnexpectedCloseIsTerminal(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if err := h.manager.Start(ctx); err != nil {
		t.Fatal(err)
	}

	h.mu.Lock()
	h.server.conn.Close()
	h.mu.Unlock()

	waitForState(t, h.manager, StateStopped)
	if h.sink.errorCount() == 0 {
		t.Fatal("expected a visible notification for the unexpected close")
	}
	if !errors.Is(h.manager.Err(), ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", h.manager.Err())
	}
}

func TestStopTimeoutForcesKill(t *testing.T) {
	h := newHarness(t, func(fs *fakeServer) { fs.ignoreStop = true })
	ctx := context.Background()

	if err := h.manager.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.manager.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	h.mu.Lock()
	killed := h.killed
	h.mu.Unlock()
	if !killed {
		t.Fatal("expected the unresponsive server to be killed")
	}
	if got := h.manager.State(); got != StateStopped {
		t.Fatalf("expected stopped after forced kill, got %s", got)
	}
}

func TestFormatDocumentSwallowsRequestErrors(t *testing.T) {
	h := newHarness(t, func(fs *fakeServer) { fs.formatFails = true })
	ctx := context.Background()

	if err := h.manager.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer h.manager.Stop(ctx)

	edits := h.manager.FormatDocument(ctx, "file:///tmp/doc.md")
	if edits != nil {
		t.Fatalf("expected no result on request failure, got %v", edits)
	}
	if got := h.manager.State(); got != StateRunning {
		t.Fatalf("a failed request must not end the session, state = %s", got)
	}
}

func TestFormatDocumentWhenRunning(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if err := h.manager.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer h.manager.Stop(ctx)

	edits := h.manager.FormatDocument(ctx, "file:///tmp/doc.md")
	if len(edits) != 1 || edits[0].NewText != "formatted" {
		t.Fatalf("unexpected edits %v", edits)
	}
}

func TestExecOverrideBeatsManagedInstall(t *testing.T) {
	resolved := false
	m := NewManager(Config{
		ExecOverride: "/definitely/not/there",
		ResolveExec: func(context.Context) (string, error) {
			resolved = true
			return "/managed/bin", nil
		},
	})

	_, err := m.resolveExec(context.Background())
	if err == nil {
		t.Fatal("expected stat failure for missing override path")
	}
	if resolved {
		t.Fatal("override must bypass the managed resolver entirely")
	}
}

func TestStartFailureIsReportedNotThrown(t *testing.T) {
	h := newHarness(t, nil)
	h.manager.cfg.ResolveExec = func(context.Context) (string, error) {
		return "", errors.New("no network and no binary")
	}

	if err := h.manager.Start(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if h.manager.State() != StateStopped {
		t.Fatalf("failed start must land back in stopped, got %s", h.manager.State())
	}
	if h.sink.errorCount() == 0 {
		t.Fatal("expected a visible failure notification")
	}
}
