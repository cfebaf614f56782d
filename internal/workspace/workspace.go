// Package workspace manages ephemeral per-run clone directories and the
// shell commands executed inside them.
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// Default port range for deployment processes.
const (
	portBase  = 4300
	portRange = 1000
)

// Manager creates workspaces, clones repositories into them, and runs
// shell commands with bounded timeouts.
type Manager struct {
	root     string
	runner   CommandRunner
	logger   *slog.Logger
	portSeq  atomic.Int64
	shellCmd string
}

// Option configures a Manager.
type Option func(*Manager)

// WithRunner overrides the command runner (used by tests).
func WithRunner(r CommandRunner) Option {
	return func(m *Manager) { m.runner = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager rooted at the given directory.
func NewManager(root string, opts ...Option) *Manager {
	m := &Manager{
		root:     root,
		runner:   NewExecRunner(),
		shellCmd: "sh",
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Root returns the workspace root directory.
func (m *Manager) Root() string {
	return m.root
}

// Dir returns the workspace directory for a run id without creating it.
func (m *Manager) Dir(runID string) string {
	return filepath.Join(m.root, runID)
}

// Create makes the workspace directory for a run and returns its path.
func (m *Manager) Create(runID string) (string, error) {
	dir := m.Dir(runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", runID, err)
	}
	return dir, nil
}

// Remove deletes a run's workspace directory.
func (m *Manager) Remove(runID string) error {
	dir := m.Dir(runID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", runID, err)
	}
	return nil
}

// CloneRepository clones a repository branch into dir using the git CLI.
// A shallow single-branch clone keeps validation runs fast.
func (m *Manager) CloneRepository(ctx context.Context, repoURL, branch, dir string) error {
	args := []string{"clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch, "--single-branch")
	}
	args = append(args, repoURL, dir)

	m.logger.Debug("cloning repository", "url", repoURL, "branch", branch, "dir", dir)
	if _, err := m.runner.Run(ctx, "", "git", args...); err != nil {
		return fmt.Errorf("clone %s (branch %s): %w", repoURL, branch, err)
	}
	return nil
}

// CommandResult holds captured output from a shell command.
type CommandResult struct {
	Stdout string
	Stderr string
}

// Combined returns stdout and stderr joined for logging and parsing.
func (r CommandResult) Combined() string {
	out := r.Stdout
	if r.Stderr != "" {
		if out != "" {
			out += "\n"
		}
		out += r.Stderr
	}
	return out
}

// RunShell executes a shell command in dir with the given timeout.
// The command's output is returned even when the command fails; a
// timeout is reported via context.DeadlineExceeded in the error chain.
func (m *Manager) RunShell(ctx context.Context, dir, command string, timeout time.Duration) (CommandResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, m.shellCmd, "-c", command)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	m.logger.Debug("running shell command", "dir", dir, "command", command, "timeout", timeout)
	err := cmd.Run()

	result := CommandResult{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	if ctx.Err() == context.DeadlineExceeded {
		return result, fmt.Errorf("command timed out after %v: %w", timeout, ctx.Err())
	}
	if err != nil {
		return result, fmt.Errorf("command failed: %w", err)
	}
	return result, nil
}

// AllocatePort hands out a port for a deployment process. Ports cycle
// through a fixed range; collisions surface as deploy failures and are
// retried on the next run.
func (m *Manager) AllocatePort() int {
	n := m.portSeq.Add(1)
	return portBase + int(n%portRange)
}
