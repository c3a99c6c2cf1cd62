// Package ipatool wraps the external ipatool CLI for App Store operations.
// All invocations use argument-array spawning, never shell interpolation.
package ipatool

import (
	"context"
	"errors"
	"os/exec"
	"sync"
)

// CommandRunner executes external commands.
// This interface enables testing without actual command execution.
type CommandRunner interface {
	// Run executes a command to completion and returns combined stdout/stderr.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// Start launches a long-running command and returns a handle to it.
	Start(ctx context.Context, name string, args ...string) (Process, error)
}

// Process is a handle to a started command. Output accessors are safe to
// call while the process is still running.
type Process interface {
	// Wait blocks until the process exits. A non-zero exit code is returned
	// as an *exec.ExitError by the real implementation.
	Wait() error

	// Kill terminates the process. Wait still returns afterwards.
	Kill() error

	// Output returns the combined stdout+stderr text accumulated so far.
	Output() string

	// Stderr returns the stderr text accumulated so far.
	Stderr() string
}

// RealCommandRunner executes actual system commands.
type RealCommandRunner struct{}

// NewRealCommandRunner creates a command runner that executes real commands.
func NewRealCommandRunner() *RealCommandRunner {
	return &RealCommandRunner{}
}

// Run executes a command and returns combined stdout/stderr output.
func (r *RealCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Start launches a command with buffered output capture.
func (r *RealCommandRunner) Start(ctx context.Context, name string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	p := &realProcess{cmd: cmd}
	cmd.Stdout = &p.combined
	cmd.Stderr = io2(&p.combined, &p.stderr)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return p, nil
}

// realProcess wraps exec.Cmd with synchronized output buffers.
type realProcess struct {
	cmd      *exec.Cmd
	combined lockedBuffer
	stderr   lockedBuffer
}

func (p *realProcess) Wait() error { return p.cmd.Wait() }

func (p *realProcess) Kill() error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	return p.cmd.Process.Kill()
}

func (p *realProcess) Output() string { return p.combined.String() }
func (p *realProcess) Stderr() string { return p.stderr.String() }

// lockedBuffer is a mutex-guarded byte buffer. The process writes from its
// own goroutine while the poll loop reads, so plain bytes.Buffer is unsafe.
type lockedBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// io2 fans writes out to two buffers (stderr is mirrored into the combined
// stream so classification sees both in order).
func io2(a, b *lockedBuffer) *teeWriter { return &teeWriter{a: a, b: b} }

type teeWriter struct {
	a, b *lockedBuffer
}

func (t *teeWriter) Write(p []byte) (int, error) {
	if _, err := t.a.Write(p); err != nil {
		return 0, err
	}
	return t.b.Write(p)
}

// MockCommandRunner is a test double for CommandRunner.
type MockCommandRunner struct {
	Output []byte
	Err    error
	Calls  [][]string // Track calls for debugging

	// StartProc is returned from Start when set.
	StartProc Process
	StartErr  error
}

// Run returns the configured output and error.
func (m *MockCommandRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.record(name, args)
	return m.Output, m.Err
}

// Start returns the configured process handle.
func (m *MockCommandRunner) Start(_ context.Context, name string, args ...string) (Process, error) {
	m.record(name, args)
	return m.StartProc, m.StartErr
}

func (m *MockCommandRunner) record(name string, args []string) {
	if m.Calls == nil {
		m.Calls = [][]string{}
	}
	call := append([]string{name}, args...)
	m.Calls = append(m.Calls, call)
}

// extractExitCode attempts to extract an exit code from an error.
// Returns -1 if the error is not an exit error.
func extractExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	// Interface with ExitCode() method (mocks)
	type exitCoder interface {
		ExitCode() int
	}
	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}

	return -1
}
