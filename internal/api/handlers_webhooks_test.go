package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/deckhandhq/deckhand/internal/webhook"
)

func postWebhook(t *testing.T, ts *testServer, projectID, eventType string, body []byte, secret string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/"+projectID, bytes.NewReader(body))
	if secret != "" {
		req.Header.Set(webhook.SignatureHeader, webhook.Sign(body, secret))
	}
	if eventType != "" {
		req.Header.Set(webhook.EventTypeHeader, eventType)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestWebhook_AcceptedAndRouted(t *testing.T) {
	ts := newTestServer(t)
	proj := seedProject(t, ts.store, "widgets")

	body := []byte(`{"action":"opened","pull_request":{"number":7}}`)
	rec := postWebhook(t, ts, proj.ID, "pull_request", body, proj.WebhookSecret)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	ts.srv.deliveries.Wait()

	ts.router.mu.Lock()
	defer ts.router.mu.Unlock()
	if len(ts.router.routed) != 1 {
		t.Fatalf("routed = %d deliveries, want 1", len(ts.router.routed))
	}
	got := ts.router.routed[0]
	if got.projectID != proj.ID {
		t.Errorf("projectID = %q, want %q", got.projectID, proj.ID)
	}
	if got.eventType != "pull_request" {
		t.Errorf("eventType = %q, want %q", got.eventType, "pull_request")
	}
}

func TestWebhook_BadSignature(t *testing.T) {
	ts := newTestServer(t)
	proj := seedProject(t, ts.store, "widgets")

	body := []byte(`{"action":"opened","pull_request":{"number":7}}`)
	rec := postWebhook(t, ts, proj.ID, "pull_request", body, "wrong-secret")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401: %s", rec.Code, rec.Body.String())
	}

	ts.srv.deliveries.Wait()
	ts.router.mu.Lock()
	defer ts.router.mu.Unlock()
	if len(ts.router.routed) != 0 {
		t.Error("rejected delivery must not reach the dispatcher")
	}
}

func TestWebhook_MissingSignature(t *testing.T) {
	ts := newTestServer(t)
	proj := seedProject(t, ts.store, "widgets")

	rec := postWebhook(t, ts, proj.ID, "pull_request", []byte(`{}`), "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestWebhook_UnknownProject(t *testing.T) {
	ts := newTestServer(t)

	rec := postWebhook(t, ts, "ghost", "pull_request", []byte(`{}`), "whatever")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestWebhook_MissingEventHeader(t *testing.T) {
	ts := newTestServer(t)
	proj := seedProject(t, ts.store, "widgets")

	body := []byte(`{}`)
	rec := postWebhook(t, ts, proj.ID, "", body, proj.WebhookSecret)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

// Deliveries for one PR must apply strictly in arrival order even when
// routing is slow, and never overlap.
func TestWebhook_SerializesPerPR(t *testing.T) {
	ts := newTestServer(t)
	ts.router.delay = 5 * time.Millisecond
	proj := seedProject(t, ts.store, "widgets")

	const n = 5
	for i := 0; i < n; i++ {
		body := []byte(fmt.Sprintf(`{"seq":%d,"pull_request":{"number":7}}`, i))
		rec := postWebhook(t, ts, proj.ID, "pull_request", body, proj.WebhookSecret)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("delivery %d status = %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	ts.srv.deliveries.Wait()

	ts.router.mu.Lock()
	defer ts.router.mu.Unlock()
	if ts.router.overlapped {
		t.Error("deliveries for the same PR ran concurrently")
	}
	if len(ts.router.routed) != n {
		t.Fatalf("routed = %d deliveries, want %d", len(ts.router.routed), n)
	}
	for i, d := range ts.router.routed {
		if d.seq != i {
			t.Errorf("routed[%d].seq = %d, want %d", i, d.seq, i)
		}
	}
}

func TestSerialQueue_OrderWithinKey(t *testing.T) {
	q := newSerialQueue(nil)

	var mu sync.Mutex
	var got []int
	for i := 0; i < 10; i++ {
		q.Enqueue("key", func() {
			time.Sleep(time.Millisecond)
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	q.Wait()

	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, want %d (order %v)", i, v, i, got)
		}
	}
}

func TestSerialQueue_KeysIndependent(t *testing.T) {
	q := newSerialQueue(nil)

	blockA := make(chan struct{})
	doneB := make(chan struct{})

	q.Enqueue("a", func() { <-blockA })
	q.Enqueue("b", func() { close(doneB) })

	// Key b must drain while key a is still blocked.
	select {
	case <-doneB:
	case <-time.After(2 * time.Second):
		t.Fatal("key b waited on key a")
	}

	close(blockA)
	q.Wait()
}

func TestSerialQueue_SurvivesPanic(t *testing.T) {
	q := newSerialQueue(nil)

	var ran bool
	q.Enqueue("key", func() { panic("boom") })
	q.Enqueue("key", func() { ran = true })
	q.Wait()

	if !ran {
		t.Error("work after a panicking delivery should still run")
	}
}
