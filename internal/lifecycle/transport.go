package lifecycle

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// processStream exposes a subprocess's stdin/stdout as the duplex byte
// stream the protocol connection runs over.
type processStream struct {
	in  io.WriteCloser
	out io.ReadCloser
}

func (s processStream) Read(p []byte) (int, error)  { return s.out.Read(p) }
func (s processStream) Write(p []byte) (int, error) { return s.in.Write(p) }

func (s processStream) Close() error {
	if err := s.in.Close(); err != nil {
		s.out.Close()
		return err
	}
	return s.out.Close()
}

// launchFunc starts the server executable and returns its duplex stream, a
// wait function that blocks until the process exits, and a kill function
// for forced termination. It is a seam for tests.
type launchFunc func(ctx context.Context, path string, args []string, stderr io.Writer) (io.ReadWriteCloser, func() error, func() error, error)

func spawnProcess(ctx context.Context, path string, args []string, stderr io.Writer) (io.ReadWriteCloser, func() error, func() error, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, fmt.Errorf("launch %s: %w", path, err)
	}

	kill := func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}
	return processStream{in: stdin, out: stdout}, cmd.Wait, kill, nil
}
