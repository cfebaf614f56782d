package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deckhandhq/deckhand/internal/engine"
)

// newWorkflowCmd creates the workflow command group
func newWorkflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage step-template workflows",
		Long: `Start and inspect workflows built from step templates.

A workflow instantiates a template (a DAG of agent capability steps)
and either runs in the background on the daemon or is stepped through
one step at a time from the CLI.

Example:
  deckhand workflow types
  deckhand workflow start --type full_stack_app --project myapp --data requirements="Inventory tracker"
  deckhand workflow status <id>
  deckhand workflow cancel <id>`,
	}

	cmd.AddCommand(newWorkflowStartCmd())
	cmd.AddCommand(newWorkflowExecCmd())
	cmd.AddCommand(newWorkflowStatusCmd())
	cmd.AddCommand(newWorkflowCancelCmd())
	cmd.AddCommand(newWorkflowListCmd())
	cmd.AddCommand(newWorkflowTypesCmd())
	cmd.AddCommand(newWorkflowShowTypeCmd())

	return cmd
}

func newWorkflowStartCmd() *cobra.Command {
	var (
		workflowType string
		projectID    string
		dataPairs    []string
		noExecute    bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a workflow from a template",
		Long: `Start a workflow of the given type.

By default the daemon drives it to completion in the background. With
--no-execute the instance is created paused; advance it with
'deckhand workflow exec <id>'.

Examples:
  deckhand workflow start --type full_stack_app --project myapp --data requirements="Inventory tracker"
  deckhand workflow start --type schema_design_only --project myapp --no-execute`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if workflowType == "" {
				return fmt.Errorf("--type is required (see 'deckhand workflow types')")
			}

			data, err := parseKeyValues(dataPairs)
			if err != nil {
				return err
			}

			execute := !noExecute
			payload := map[string]any{
				"type":       workflowType,
				"project_id": projectID,
				"data":       data,
				"execute":    execute,
			}

			var inst engine.Instance
			if err := newAPIClient().post(cmd.Context(), "/api/workflows", payload, &inst); err != nil {
				return fmt.Errorf("start workflow: %w", err)
			}

			if jsonOut {
				return printJSON(inst)
			}

			fmt.Printf("Started %s workflow %s (%d steps)\n", inst.Type, inst.ID, len(inst.Steps))
			if noExecute {
				fmt.Printf("Advance it with: deckhand workflow exec %s\n", inst.ID)
			} else {
				fmt.Printf("Check progress with: deckhand workflow status %s\n", inst.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&workflowType, "type", "t", "", "workflow type (required)")
	cmd.Flags().StringVarP(&projectID, "project", "P", "", "project ID the workflow targets")
	cmd.Flags().StringArrayVar(&dataPairs, "data", nil, "workflow input as key=value (repeatable)")
	cmd.Flags().BoolVar(&noExecute, "no-execute", false, "create the workflow without running it")

	return cmd
}

func newWorkflowExecCmd() *cobra.Command {
	var oneStep bool

	cmd := &cobra.Command{
		Use:   "exec <id>",
		Short: "Step a workflow to completion from the CLI",
		Long: `Execute a paused workflow step by step, printing each result.

Stops on the first failed step. With --step only one step runs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			client := newAPIClient()

			for {
				var resp struct {
					Result   engine.StepResult `json:"result"`
					Workflow engine.Instance   `json:"workflow"`
				}
				if err := client.post(cmd.Context(), "/api/workflows/"+id+"/step", nil, &resp); err != nil {
					return fmt.Errorf("execute step: %w", err)
				}

				printStepResult(os.Stdout, &resp.Workflow, resp.Result)

				if !resp.Result.Success {
					return fmt.Errorf("workflow %s failed", id)
				}
				if resp.Workflow.Status.IsTerminal() {
					fmt.Printf("\n%s workflow %s %s\n", statusIcon(string(resp.Workflow.Status)), id, resp.Workflow.Status)
					return nil
				}
				if oneStep {
					fmt.Printf("Next: deckhand workflow exec %s\n", id)
					return nil
				}
			}
		},
	}

	cmd.Flags().BoolVar(&oneStep, "step", false, "run a single step and stop")

	return cmd
}

// printStepResult reports one executed step. The executed step is the
// one before the instance's current cursor.
func printStepResult(out io.Writer, inst *engine.Instance, res engine.StepResult) {
	stepID := "step"
	if idx := inst.CurrentStep - 1; idx >= 0 && idx < len(inst.Steps) {
		stepID = inst.Steps[idx].ID
	}
	if res.Success {
		fmt.Fprintf(out, "  ✓ %s\n", stepID)
		return
	}
	fmt.Fprintf(out, "  ✗ %s: %s\n", stepID, res.Error)
}

func newWorkflowStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show one workflow instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var inst engine.Instance
			if err := newAPIClient().get(cmd.Context(), "/api/workflows/"+args[0], &inst); err != nil {
				return fmt.Errorf("get workflow: %w", err)
			}

			if jsonOut {
				return printJSON(inst)
			}

			renderWorkflow(os.Stdout, &inst)
			return nil
		},
	}
}

func renderWorkflow(out io.Writer, inst *engine.Instance) {
	fmt.Fprintf(out, "%s %s  %s\n", statusIcon(string(inst.Status)), colorize(styleHeading, inst.ID), inst.Status)
	fmt.Fprintf(out, "  Type:    %s\n", inst.Type)
	if inst.ProjectID != "" {
		fmt.Fprintf(out, "  Project: %s\n", inst.ProjectID)
	}
	fmt.Fprintf(out, "  Started: %s (%s ago)\n", inst.CreatedAt.Format("2006-01-02 15:04:05"), formatAge(inst.CreatedAt))
	fmt.Fprintln(out, "  Steps:")
	for i, step := range inst.Steps {
		marker := "○"
		detail := ""
		if res, ok := inst.Results[step.ID]; ok {
			if res.Success {
				marker = "✓"
			} else {
				marker = "✗"
				detail = "  " + truncate(res.Error, 60)
			}
		} else if i == inst.CurrentStep && inst.Status == engine.StatusStarted {
			marker = "●"
		}
		fmt.Fprintf(out, "    %s %s%s\n", marker, step.ID, detail)
	}
}

func newWorkflowListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Workflows []*engine.Instance `json:"workflows"`
				Count     int                `json:"count"`
			}
			if err := newAPIClient().get(cmd.Context(), "/api/workflows", &resp); err != nil {
				return fmt.Errorf("list workflows: %w", err)
			}

			if jsonOut {
				return printJSON(resp.Workflows)
			}
			if len(resp.Workflows) == 0 {
				fmt.Println("No active workflows.")
				return nil
			}

			sort.Slice(resp.Workflows, func(i, j int) bool {
				return resp.Workflows[i].CreatedAt.After(resp.Workflows[j].CreatedAt)
			})

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tTYPE\tPROJECT\tSTATUS\tSTEP\tAGE")
			for _, inst := range resp.Workflows {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
					truncate(inst.ID, 12), inst.Type, inst.ProjectID,
					inst.Status, inst.CurrentStep, len(inst.Steps), formatAge(inst.CreatedAt))
			}
			_ = w.Flush()
			return nil
		},
	}
}

func newWorkflowCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a running workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient().post(cmd.Context(), "/api/workflows/"+args[0]+"/cancel", nil, nil); err != nil {
				return fmt.Errorf("cancel workflow: %w", err)
			}
			fmt.Printf("Cancelled workflow %s\n", args[0])
			return nil
		},
	}
}

func newWorkflowTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List available workflow types",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Types []string `json:"types"`
				Count int      `json:"count"`
			}
			if err := newAPIClient().get(cmd.Context(), "/api/workflow-types", &resp); err != nil {
				return fmt.Errorf("list workflow types: %w", err)
			}

			if jsonOut {
				return printJSON(resp.Types)
			}
			for _, t := range resp.Types {
				fmt.Println(t)
			}
			return nil
		},
	}
}

func newWorkflowShowTypeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <type>",
		Short: "Show a workflow type's step template as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newAPIClient().getRaw(cmd.Context(), "/api/workflow-types/"+args[0])
			if err != nil {
				return fmt.Errorf("get workflow type: %w", err)
			}
			fmt.Print(string(data))
			return nil
		},
	}
}
