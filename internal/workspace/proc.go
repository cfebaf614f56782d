package workspace

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Proc is a supervised deployment process. Unlike a fire-and-forget
// launch, the handle exposes an explicit lifecycle so cancellation can
// terminate the process (and its children) instead of merely stopping
// further scheduling.
type Proc struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.Mutex
	done   chan struct{}
	err    error
	output bytes.Buffer
	killed bool
}

// StartProc launches command via the shell in dir with PORT set in the
// environment, and begins supervising it.
func (m *Manager) StartProc(ctx context.Context, dir, command string, port int) (*Proc, error) {
	procCtx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(procCtx, m.shellCmd, "-c", command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), fmt.Sprintf("PORT=%d", port))
	setProcAttr(cmd) // Enable process group for child process cleanup

	p := &Proc{
		cmd:    cmd,
		cancel: cancel,
		logger: m.logger,
		done:   make(chan struct{}),
	}
	cmd.Stdout = &p.output
	cmd.Stderr = &p.output

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start deployment process: %w", err)
	}

	m.logger.Debug("deployment process started", "dir", dir, "pid", cmd.Process.Pid, "port", port)

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	}()

	return p, nil
}

// Running reports whether the process is still alive.
func (p *Proc) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Output returns the combined stdout/stderr captured so far.
func (p *Proc) Output() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.TrimSpace(p.output.String())
}

// Err returns the exit error after the process has finished.
func (p *Proc) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// HealthCheck polls url until it answers with a 2xx/3xx status, the
// process dies, or ctx expires. A freshly started server usually needs
// a few attempts.
func (p *Proc) HealthCheck(ctx context.Context, url string, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	client := &http.Client{Timeout: 5 * time.Second}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("health check timed out for %s: %w", url, ctx.Err())
		case <-p.done:
			out := p.Output()
			if out != "" {
				return fmt.Errorf("deployment process exited before becoming healthy: %s", out)
			}
			return fmt.Errorf("deployment process exited before becoming healthy")
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return fmt.Errorf("health check request: %w", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				continue // not up yet
			}
			resp.Body.Close()
			if resp.StatusCode < 400 {
				return nil
			}
		}
	}
}

// Stop terminates the process and its process group. Safe to call
// multiple times.
func (p *Proc) Stop() {
	p.mu.Lock()
	alreadyKilled := p.killed
	p.killed = true
	cmd := p.cmd
	p.mu.Unlock()

	if alreadyKilled {
		return
	}

	p.cancel()

	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if pid > 0 {
		// killProcessGroup is platform-specific (unix vs windows)
		if err := killProcessGroup(pid); err != nil {
			// ESRCH (no such process) is expected when the process
			// already exited before we tried to kill it.
			p.logger.Debug("process group cleanup", "pid", pid, "error", err)
		}
	}
}

// Wait blocks until the process exits or ctx is cancelled.
func (p *Proc) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return p.Err()
	}
}
