package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
)

// backend is the far end of the relay in these tests: a trivial server
// that echoes request params and records notifications.
type backend struct {
	mu            sync.Mutex
	notifications []string
}

func (b *backend) handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	if req.Notif {
		b.mu.Lock()
		b.notifications = append(b.notifications, req.Method)
		b.mu.Unlock()
		return nil, nil
	}
	switch req.Method {
	case "echo":
		return req.Params, nil
	case "fail":
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "bad input"}
	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: req.Method}
	}
}

// newRelayedPair wires editor <-> relay <-> backend over in-memory pipes
// and returns the editor-side connection plus the backend.
func newRelayedPair(t *testing.T) (*jsonrpc2.Conn, *backend) {
	t.Helper()
	ctx := context.Background()

	editorSide, relayEditorSide := net.Pipe()
	backendSide, relayBackendSide := net.Pipe()

	b := &backend{}
	backendConn := NewConn(ctx, backendSide, jsonrpc2.AsyncHandler(jsonrpc2.HandlerWithError(b.handle)))

	var serverConn *jsonrpc2.Conn
	var mu sync.Mutex
	getServer := func() *jsonrpc2.Conn {
		mu.Lock()
		defer mu.Unlock()
		return serverConn
	}

	relayToServer := NewConn(ctx, relayBackendSide, Forwarder(func() *jsonrpc2.Conn { return nil }, t.Logf))
	relayToEditor := NewConn(ctx, relayEditorSide, Forwarder(getServer, t.Logf))

	mu.Lock()
	serverConn = relayToServer
	mu.Unlock()

	editorConn := NewConn(ctx, editorSide, jsonrpc2.AsyncHandler(jsonrpc2.HandlerWithError(
		func(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) (any, error) { return nil, nil })))

	t.Cleanup(func() {
		editorConn.Close()
		relayToEditor.Close()
		relayToServer.Close()
		backendConn.Close()
	})
	return editorConn, b
}

func TestForwarderRelaysRequestAndResponse(t *testing.T) {
	editorConn, _ := newRelayedPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var result map[string]string
	err := editorConn.Call(ctx, "echo", map[string]string{"text": "hello"}, &result)
	if err != nil {
		t.Fatalf("relayed call: %v", err)
	}
	if result["text"] != "hello" {
		t.Fatalf("unexpected relayed result %v", result)
	}
}

func TestForwarderRelaysNotifications(t *testing.T) {
	editorConn, b := newRelayedPair(t)

	ctx := context.Background()
	if err := editorConn.Notify(ctx, "textDocument/didOpen", map[string]any{}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		n := len(b.notifications)
		b.mu.Unlock()
		if n > 0 {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.notifications[0] != "textDocument/didOpen" {
				t.Fatalf("unexpected notification %q", b.notifications[0])
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("notification never reached the backend")
}

func TestForwarderRelaysErrors(t *testing.T) {
	editorConn, _ := newRelayedPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var result json.RawMessage
	err := editorConn.Call(ctx, "fail", nil, &result)
	if err == nil {
		t.Fatal("expected relayed error")
	}
	var rpcErr *jsonrpc2.Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != jsonrpc2.CodeInvalidParams {
		t.Fatalf("expected invalid params error, got %v", err)
	}
}

func TestForwarderWithoutPeerRejectsRequests(t *testing.T) {
	ctx := context.Background()
	editorSide, relaySide := net.Pipe()

	relayConn := NewConn(ctx, relaySide, Forwarder(func() *jsonrpc2.Conn { return nil }, t.Logf))
	editorConn := NewConn(ctx, editorSide, jsonrpc2.AsyncHandler(jsonrpc2.HandlerWithError(
		func(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) (any, error) { return nil, nil })))
	t.Cleanup(func() {
		editorConn.Close()
		relayConn.Close()
	})

	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var result json.RawMessage
	err := editorConn.Call(cctx, "anything", nil, &result)
	var rpcErr *jsonrpc2.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected rpc error when no server attached, got %v", err)
	}
}
