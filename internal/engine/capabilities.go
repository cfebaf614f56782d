package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deckhandhq/deckhand/internal/agents"
	deckerrors "github.com/deckhandhq/deckhand/internal/errors"
)

// AgentRunner is the slice of the agent-run client that capability
// handlers need.
type AgentRunner interface {
	CreateRun(ctx context.Context, req agents.Request) (*agents.Run, error)
	WaitForCompletion(ctx context.Context, id string, pollInterval time.Duration) (*agents.Run, error)
}

// Artifact fields a dependency result may carry; whichever are present
// get threaded into the next agent's prompt.
var artifactKeys = []string{"plan", "schema", "ddl", "queries", "suite", "report"}

// agentStep is the shared handler behind every agent-backed
// capability. It submits a run, waits for it, and shapes the run's
// output so downstream steps can pick up the artifact and its id.
type agentStep struct {
	client       AgentRunner
	pollInterval time.Duration

	// verb opens the prompt, e.g. "Design a relational database schema".
	verb string
	// idKey, when set, exposes the run id under a well-known field so
	// dependent steps receive it (schemaId, suiteId, ...).
	idKey string
	// outputKey names the field the run's output is stored under.
	outputKey string
}

func (s agentStep) Execute(ctx context.Context, in Input) (map[string]any, error) {
	run, err := s.client.CreateRun(ctx, agents.Request{
		Prompt:  s.prompt(in),
		Context: runContext(in),
	})
	if err != nil {
		return nil, deckerrors.ErrExternalCall("agent-run", err)
	}

	run, err = s.client.WaitForCompletion(ctx, run.ID, s.pollInterval)
	if err != nil {
		return nil, deckerrors.ErrExternalCall("agent-run", err)
	}
	if run.Status != agents.StatusCompleted {
		reason := run.Error
		if reason == "" {
			reason = string(run.Status)
		}
		return nil, fmt.Errorf("agent run %s did not complete: %s", run.ID, reason)
	}

	out := map[string]any{
		"runId":     run.ID,
		s.outputKey: run.Output,
	}
	if s.idKey != "" {
		out[s.idKey] = run.ID
	}
	if pid, ok := in.Data["projectId"]; ok {
		out["projectId"] = pid
	}
	return out, nil
}

// prompt builds the natural-language instruction for the run: the
// capability verb, the workflow's requirements, and the artifacts
// produced by dependency steps.
func (s agentStep) prompt(in Input) string {
	var b strings.Builder
	b.WriteString(s.verb)
	b.WriteString(".")

	if req, ok := in.Data["requirements"].(string); ok && req != "" {
		b.WriteString("\n\nRequirements:\n")
		b.WriteString(req)
	}

	for _, depID := range in.Step.DependsOn {
		out, ok := in.Data[depID+"_result"].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range artifactKeys {
			v, ok := out[key].(string)
			if !ok || v == "" {
				continue
			}
			fmt.Fprintf(&b, "\n\n--- %s (from step %s) ---\n%s", key, depID, v)
		}
	}
	return b.String()
}

func runContext(in Input) map[string]any {
	rc := map[string]any{
		"workflowId": in.WorkflowID,
		"stepId":     in.Step.ID,
		"stepType":   in.Step.Type,
	}
	if pid, ok := in.Data["projectId"]; ok {
		rc["projectId"] = pid
	}
	return rc
}

// RegisterAgentCapabilities binds every built-in step type to an
// agent-backed handler. pollInterval of zero uses the client default.
func RegisterAgentCapabilities(r *Registry, client AgentRunner, pollInterval time.Duration) {
	register := func(stepType, verb, idKey, outputKey string) {
		r.Register(stepType, agentStep{
			client:       client,
			pollInterval: pollInterval,
			verb:         verb,
			idKey:        idKey,
			outputKey:    outputKey,
		})
	}

	register("create_project_plan", "Create a project plan covering features, milestones, and data requirements", "planId", "plan")
	register("design_schema", "Design a relational database schema for the project", "schemaId", "schema")
	register("generate_ddl", "Generate SQL DDL statements for the schema", "", "ddl")
	register("generate_queries", "Generate the application queries the project needs", "queryId", "queries")
	register("validate_schema", "Validate the database schema and DDL for correctness and normalization", "", "report")
	register("validate_queries", "Validate the generated queries against the schema", "", "report")
	register("create_test_suite", "Create a test suite covering the project plan", "suiteId", "suite")
	register("run_test_suite", "Run the test suite and report pass/fail results", "", "report")
}
