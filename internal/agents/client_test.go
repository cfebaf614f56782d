package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCreateRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/v1/runs" {
			t.Errorf("path = %s, want /api/v1/runs", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Prompt != "fix the login page" {
			t.Errorf("prompt = %q", req.Prompt)
		}
		if req.Context["pipelineId"] != "pl-1" {
			t.Errorf("context = %v, missing pipelineId", req.Context)
		}

		json.NewEncoder(w).Encode(Run{ID: "run-42", Status: StatusQueued})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	run, err := client.CreateRun(context.Background(), Request{
		Prompt:  "fix the login page",
		Context: map[string]any{"pipelineId": "pl-1"},
	})
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.ID != "run-42" {
		t.Errorf("ID = %q, want run-42", run.ID)
	}
	if run.Status != StatusQueued {
		t.Errorf("Status = %q, want queued", run.Status)
	}
}

func TestCreateRun_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent pool exhausted", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.CreateRun(context.Background(), Request{Prompt: "x"})
	if err == nil {
		t.Fatal("CreateRun should fail on 503")
	}
	if !strings.Contains(err.Error(), "HTTP 503") {
		t.Errorf("error = %v, want HTTP 503", err)
	}
	if !strings.Contains(err.Error(), "agent pool exhausted") {
		t.Errorf("error = %v, want server message", err)
	}
}

func TestGetRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/runs/run-7" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Run{ID: "run-7", Status: StatusRunning, Branch: "agent/fix-7"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key")
	run, err := client.GetRun(context.Background(), "run-7")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != StatusRunning {
		t.Errorf("Status = %q, want running", run.Status)
	}
	if run.Branch != "agent/fix-7" {
		t.Errorf("Branch = %q", run.Branch)
	}
}

func TestWaitForCompletion(t *testing.T) {
	var polls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls++
		status := StatusRunning
		if polls >= 3 {
			status = StatusCompleted
		}
		json.NewEncoder(w).Encode(Run{ID: "run-9", Status: status, Output: "done"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key")
	run, err := client.WaitForCompletion(context.Background(), "run-9", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForCompletion failed: %v", err)
	}
	if run.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", run.Status)
	}
	if polls < 3 {
		t.Errorf("polls = %d, want at least 3", polls)
	}
}

func TestWaitForCompletion_ReturnsFailedRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Run{ID: "run-10", Status: StatusFailed, Error: "compile error"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key")
	run, err := client.WaitForCompletion(context.Background(), "run-10", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForCompletion failed: %v", err)
	}
	if run.Status != StatusFailed {
		t.Errorf("Status = %q, want failed (terminal failure is the caller's call)", run.Status)
	}
	if run.Error != "compile error" {
		t.Errorf("Error = %q", run.Error)
	}
}

func TestWaitForCompletion_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Run{ID: "run-11", Status: StatusRunning})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(srv.URL, "key")
	_, err := client.WaitForCompletion(ctx, "run-11", 10*time.Millisecond)
	if err == nil {
		t.Fatal("WaitForCompletion should fail when ctx expires")
	}
	if !strings.Contains(err.Error(), "run-11") {
		t.Errorf("error = %v, want run id in message", err)
	}
}

func TestStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusQueued, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal(%s) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "//") {
			t.Errorf("path contains double slash: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"runId":"run-1","status":"queued"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "key")
	if _, err := client.CreateRun(context.Background(), Request{Prompt: "x"}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
}
