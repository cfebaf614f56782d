package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	deckerrors "github.com/deckhandhq/deckhand/internal/errors"
	"github.com/deckhandhq/deckhand/internal/webhook"
)

// maxWebhookBody caps delivery payloads. GitHub documents 25MB but
// real PR events are a few hundred KB at most.
const maxWebhookBody = 2 << 20

// routeTimeout bounds how long one delivery may occupy its queue slot.
const routeTimeout = 2 * time.Minute

// handleWebhook receives a provider delivery, verifies its signature
// against the project's secret, and enqueues it for ordered
// application. The 202 only acknowledges receipt; routing happens on
// the queue.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")
	proj, err := s.projects.GetProject(r.Context(), projectID)
	if err != nil {
		HandleError(w, err)
		return
	}
	if proj == nil {
		HandleError(w, deckerrors.ErrProjectNotFound(projectID))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		JSONError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if err := webhook.Verify(r.Header.Get(webhook.SignatureHeader), body, proj.WebhookSecret); err != nil {
		s.logger.Warn("webhook signature rejected", "project_id", proj.ID)
		HandleError(w, err)
		return
	}

	eventType := r.Header.Get(webhook.EventTypeHeader)
	if eventType == "" {
		JSONError(w, "missing "+webhook.EventTypeHeader+" header", http.StatusBadRequest)
		return
	}

	// One queue key per (project, PR) keeps deliveries for the same
	// pull request in arrival order while distinct PRs run
	// concurrently.
	key := fmt.Sprintf("%s#%d", proj.ID, webhook.PRNumberFromPayload(string(body)))
	s.deliveries.Enqueue(key, func() {
		ctx, cancel := context.WithTimeout(context.Background(), routeTimeout)
		defer cancel()
		if err := s.dispatcher.Route(ctx, proj, eventType, body); err != nil {
			s.logger.Error("webhook routing failed",
				"project_id", proj.ID,
				"event_type", eventType,
				"error", err)
		}
	})

	JSONResponseStatus(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// serialQueue applies queued work for the same key strictly in arrival
// order. Distinct keys drain concurrently.
type serialQueue struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string][]func()
	running map[string]bool

	wg sync.WaitGroup
}

func newSerialQueue(logger *slog.Logger) *serialQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &serialQueue{
		logger:  logger,
		pending: make(map[string][]func()),
		running: make(map[string]bool),
	}
}

// Enqueue schedules fn behind any work already queued for key and
// starts a drainer for the key if none is running.
func (q *serialQueue) Enqueue(key string, fn func()) {
	q.wg.Add(1)
	q.mu.Lock()
	q.pending[key] = append(q.pending[key], fn)
	if !q.running[key] {
		q.running[key] = true
		go q.drain(key)
	}
	q.mu.Unlock()
}

func (q *serialQueue) drain(key string) {
	for {
		q.mu.Lock()
		queue := q.pending[key]
		if len(queue) == 0 {
			q.running[key] = false
			delete(q.pending, key)
			q.mu.Unlock()
			return
		}
		fn := queue[0]
		q.pending[key] = queue[1:]
		q.mu.Unlock()

		q.run(fn)
	}
}

// run isolates a panicking delivery so the drainer survives it.
func (q *serialQueue) run(fn func()) {
	defer q.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			q.logger.Error("webhook delivery panicked", "panic", rec)
		}
	}()
	fn()
}

// Wait blocks until every enqueued delivery has been applied. Used by
// tests to observe ordering.
func (q *serialQueue) Wait() {
	q.wg.Wait()
}
