package events

import (
	"fmt"
	"io"
	"sync"
)

// CLIPublisher writes phase and pipeline events to an io.Writer (typically
// stdout) for foreground runs. It wraps another publisher to also fan out
// events for WebSocket/API use.
type CLIPublisher struct {
	inner Publisher
	out   io.Writer
	mu    sync.Mutex
	quiet bool // If true, only errors are written
}

// CLIPublisherOption configures a CLIPublisher.
type CLIPublisherOption func(*CLIPublisher)

// WithInnerPublisher sets an inner publisher to fan out events to.
func WithInnerPublisher(p Publisher) CLIPublisherOption {
	return func(c *CLIPublisher) {
		c.inner = p
	}
}

// WithQuiet suppresses everything except errors.
func WithQuiet(quiet bool) CLIPublisherOption {
	return func(c *CLIPublisher) {
		c.quiet = quiet
	}
}

// NewCLIPublisher creates a publisher that writes events to the given writer.
func NewCLIPublisher(out io.Writer, opts ...CLIPublisherOption) *CLIPublisher {
	p := &CLIPublisher{out: out}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish writes progress events to the output writer and fans out to the
// inner publisher.
func (p *CLIPublisher) Publish(event Event) {
	// Fan out to inner publisher if present
	if p.inner != nil {
		p.inner.Publish(event)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch event.Type {
	case EventIteration:
		if p.quiet {
			return
		}
		if u, ok := event.Data.(IterationUpdate); ok {
			fmt.Fprintf(p.out, "\n━━━ Iteration %d/%d ━━━\n", u.Iteration, u.MaxIterations)
			if u.LastError != "" {
				fmt.Fprintf(p.out, "carrying forward: %s\n", u.LastError)
			}
		}
	case EventPhase:
		if p.quiet {
			return
		}
		if u, ok := event.Data.(PhaseUpdate); ok {
			switch u.Status {
			case "started":
				fmt.Fprintf(p.out, "  → %s\n", u.Phase)
			case "completed":
				fmt.Fprintf(p.out, "  ✓ %s\n", u.Phase)
			case "skipped":
				fmt.Fprintf(p.out, "  - %s (skipped)\n", u.Phase)
			case "failed":
				fmt.Fprintf(p.out, "  ✗ %s: %s\n", u.Phase, u.Error)
			}
		}
	case EventPipelineStep:
		if p.quiet {
			return
		}
		if m, ok := event.Data.(map[string]string); ok {
			fmt.Fprintf(p.out, "  [%s] %s\n", m["status"], m["step"])
		}
	case EventConverged:
		if p.quiet {
			return
		}
		if d, ok := event.Data.(ConvergedData); ok {
			fmt.Fprintf(p.out, "\n%s after %d iteration(s), requirements met: %t\n",
				d.Status, d.Iterations, d.RequirementsMet)
		}
	case EventError:
		if d, ok := event.Data.(ErrorData); ok {
			fmt.Fprintf(p.out, "\n❌ Error: %s\n", d.Message)
		}
	}
}

// Subscribe delegates to inner publisher or returns closed channel.
func (p *CLIPublisher) Subscribe(scope string) <-chan Event {
	if p.inner != nil {
		return p.inner.Subscribe(scope)
	}
	ch := make(chan Event)
	close(ch)
	return ch
}

// Unsubscribe delegates to inner publisher.
func (p *CLIPublisher) Unsubscribe(scope string, ch <-chan Event) {
	if p.inner != nil {
		p.inner.Unsubscribe(scope, ch)
	}
}

// Close delegates to inner publisher.
func (p *CLIPublisher) Close() {
	if p.inner != nil {
		p.inner.Close()
	}
}
