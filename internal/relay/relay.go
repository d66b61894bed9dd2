// Package relay forwards protocol traffic between the editor and the
// managed server. Each side gets a jsonrpc2 connection whose handler
// re-issues requests on the peer connection with the raw parameters;
// message structure stays entirely with the protocol library.
package relay

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/sourcegraph/jsonrpc2"
)

// Stdio exposes this process's stdin/stdout as the editor-facing duplex
// stream.
type Stdio struct{}

func (Stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (Stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func (Stdio) Close() error {
	if err := os.Stdin.Close(); err != nil {
		os.Stdout.Close()
		return err
	}
	return os.Stdout.Close()
}

// Forwarder builds a handler that relays everything to the connection
// returned by peer. The connection is looked up per message so the peer can
// be swapped out across a server restart. A nil peer drops notifications
// and rejects requests, which happens briefly while the server is down.
func Forwarder(peer func() *jsonrpc2.Conn, logf func(format string, args ...any)) jsonrpc2.Handler {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return jsonrpc2.AsyncHandler(jsonrpc2.HandlerWithError(
		func(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
			target := peer()
			if target == nil {
				logf("dropping %s: peer not connected", req.Method)
				if req.Notif {
					return nil, nil
				}
				return nil, &jsonrpc2.Error{
					Code:    jsonrpc2.CodeInternalError,
					Message: "server not available",
				}
			}

			var params any
			if req.Params != nil {
				params = req.Params
			}

			if req.Notif {
				return nil, target.Notify(ctx, req.Method, params)
			}

			var result json.RawMessage
			if err := target.Call(ctx, req.Method, params, &result); err != nil {
				return nil, err
			}
			return result, nil
		}))
}

// NewConn wraps a duplex stream in a protocol connection using the
// header-delimited codec and the given handler.
func NewConn(ctx context.Context, stream io.ReadWriteCloser, handler jsonrpc2.Handler) *jsonrpc2.Conn {
	return jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(stream, jsonrpc2.VSCodeObjectCodec{}),
		handler)
}
