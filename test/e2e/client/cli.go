// Package client provides the clients e2e scenarios drive the pipeline with.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// CLIClient runs courtstream commands against one scenario workspace.
// One-shot commands run to completion; the pipeline daemon is started
// through StartDaemon and stopped explicitly.
type CLIClient struct {
	binary     string
	configPath string
}

// NewCLIClient creates a client for the given binary and config file.
func NewCLIClient(binary, configPath string) *CLIClient {
	return &CLIClient{
		binary:     binary,
		configPath: configPath,
	}
}

// CommandResult captures the output of a finished command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run executes one subcommand and waits for it to exit. A non-zero exit
// is not an error here; scenarios assert on ExitCode so they can test
// failure modes too.
func (c *CLIClient) Run(ctx context.Context, args ...string) (*CommandResult, error) {
	full := append([]string{}, args...)
	if c.configPath != "" {
		full = append(full, "--config", c.configPath)
	}

	cmd := exec.CommandContext(ctx, c.binary, full...)
	cmd.Env = scrubEnv(os.Environ())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("run %s %s: %w", c.binary, strings.Join(args, " "), err)
	}

	return result, nil
}

// RunJSON executes one subcommand and unmarshals its stdout into out.
func (c *CLIClient) RunJSON(ctx context.Context, out any, args ...string) (*CommandResult, error) {
	result, err := c.Run(ctx, args...)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return result, fmt.Errorf("%s exited %d: %s", args[0], result.ExitCode, firstLine(result.Stderr))
	}
	if err := json.Unmarshal([]byte(result.Stdout), out); err != nil {
		return result, fmt.Errorf("decode %s output: %w", args[0], err)
	}
	return result, nil
}

// scrubEnv removes the NATS override variables so the workspace config
// file alone decides which server the process talks to.
func scrubEnv(env []string) []string {
	out := env[:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "NATS_URL=") || strings.HasPrefix(kv, "COURTSTREAM_NATS_URL=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

// Daemon is a running courtstream pipeline process.
type Daemon struct {
	cmd    *exec.Cmd
	stderr *tailBuffer
	done   chan struct{}

	mu      sync.Mutex
	waitErr error
}

// StartDaemon launches the pipeline as a subprocess. The caller owns the
// process and must call Stop.
func (c *CLIClient) StartDaemon(logLevel string) (*Daemon, error) {
	args := []string{"run", "--log-level", logLevel}
	if c.configPath != "" {
		args = append(args, "--config", c.configPath)
	}

	cmd := exec.Command(c.binary, args...)
	cmd.Env = scrubEnv(os.Environ())

	tail := newTailBuffer(64 * 1024)
	cmd.Stdout = tail
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s run: %w", c.binary, err)
	}

	d := &Daemon{
		cmd:    cmd,
		stderr: tail,
		done:   make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		d.mu.Lock()
		d.waitErr = err
		d.mu.Unlock()
		close(d.done)
	}()

	return d, nil
}

// Stop asks the pipeline to shut down and waits for it to exit. SIGTERM
// triggers the same graceful path an operator uses; the process is
// killed if it does not exit within the timeout.
func (d *Daemon) Stop(timeout time.Duration) error {
	select {
	case <-d.done:
		return d.exitError()
	default:
	}

	if err := d.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal pipeline: %w", err)
	}

	select {
	case <-d.done:
		return d.exitError()
	case <-time.After(timeout):
		_ = d.cmd.Process.Kill()
		<-d.done
		return fmt.Errorf("pipeline killed after %s shutdown timeout", timeout)
	}
}

// Running reports whether the process is still alive.
func (d *Daemon) Running() bool {
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

// Output returns the tail of the combined process output for diagnostics.
func (d *Daemon) Output() string {
	return d.stderr.String()
}

func (d *Daemon) exitError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.waitErr != nil {
		// SIGTERM exits are expected during Stop
		var exitErr *exec.ExitError
		if errors.As(d.waitErr, &exitErr) {
			return nil
		}
		return d.waitErr
	}
	return nil
}

// tailBuffer keeps the last max bytes written. Long pipeline runs log
// continuously; only the recent output matters when a scenario fails.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
