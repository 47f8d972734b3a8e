package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// lpCommand and lpstatCommand build the CUPS client invocations. Tests
// replace them.
var (
	lpCommand = func(queue string) *exec.Cmd {
		return exec.Command("lp", "-d", queue, "-o", "raw")
	}
	lpstatCommand = func(ctx context.Context, queue string) *exec.Cmd {
		return exec.CommandContext(ctx, "lpstat", "-p", queue)
	}
)

// CUPSAdapter streams raw bytes into a CUPS queue through lp. The job is
// submitted when Close returns without error.
type CUPSAdapter struct {
	queue  string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	mu     sync.Mutex
}

// NewCUPSAdapter creates an adapter for a named CUPS queue.
func NewCUPSAdapter(queue string) *CUPSAdapter {
	return &CUPSAdapter{queue: queue}
}

// Open starts lp with its stdin connected to the adapter.
func (a *CUPSAdapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cmd != nil {
		return errAlreadyOpen
	}

	cmd := lpCommand(a.queue)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open lp pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start lp for %s: %w", a.queue, err)
	}
	a.cmd = cmd
	a.stdin = stdin
	a.stderr = stderr
	return nil
}

// Write pipes data into the pending lp job.
func (a *CUPSAdapter) Write(data []byte) (int, error) {
	a.mu.Lock()
	stdin := a.stdin
	a.mu.Unlock()

	if stdin == nil {
		return 0, errNotOpen
	}
	n, err := stdin.Write(data)
	if err != nil {
		return n, fmt.Errorf("write failed: %w", err)
	}
	return n, nil
}

// Read is not supported for spooler queues.
func (a *CUPSAdapter) Read(buf []byte) (int, error) {
	return 0, errNoInput
}

// Probe asks lpstat whether the queue exists and is enabled.
func (a *CUPSAdapter) Probe(ctx context.Context) error {
	out, err := lpstatCommand(ctx, a.queue).CombinedOutput()
	if err != nil {
		return fmt.Errorf("lpstat %s: %w: %s", a.queue, err, strings.TrimSpace(string(out)))
	}
	if strings.Contains(string(out), "disabled") {
		return fmt.Errorf("queue %s is disabled", a.queue)
	}
	return nil
}

// Close ends the job and waits for lp to accept it. The adapter counts as
// closed as soon as Close starts, so IsOpen and a second Close never wait
// on lp.
func (a *CUPSAdapter) Close() error {
	a.mu.Lock()
	cmd, stdin, stderr := a.cmd, a.stdin, a.stderr
	a.cmd, a.stdin, a.stderr = nil, nil, nil
	a.mu.Unlock()

	if cmd == nil {
		return nil
	}

	stdin.Close()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("lp %s: %w: %s", a.queue, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// IsOpen returns whether a job is pending
func (a *CUPSAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cmd != nil
}
