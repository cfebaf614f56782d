package cli

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deckhandhq/deckhand/internal/pipeline"
)

// newPipelineCmd creates the pipeline command group
func newPipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Inspect PR validation pipelines",
		Long: `Inspect the validation pipelines that webhook deliveries trigger.

Without --project, only active (pending or running) pipelines are
listed; with it, the project's full history.

Example:
  deckhand pipeline list
  deckhand pipeline list --project myapp
  deckhand pipeline show <id>
  deckhand pipeline cancel <id>`,
	}

	cmd.AddCommand(newPipelineListCmd())
	cmd.AddCommand(newPipelineShowCmd())
	cmd.AddCommand(newPipelineCancelCmd())

	return cmd
}

func newPipelineListCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List validation pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/pipelines"
			if projectID != "" {
				path += "?project=" + url.QueryEscape(projectID)
			}

			var resp struct {
				Pipelines []*pipeline.Pipeline `json:"pipelines"`
				Count     int                  `json:"count"`
			}
			if err := newAPIClient().get(cmd.Context(), path, &resp); err != nil {
				return fmt.Errorf("list pipelines: %w", err)
			}

			if jsonOut {
				return printJSON(resp.Pipelines)
			}
			if len(resp.Pipelines) == 0 {
				fmt.Println("No pipelines.")
				return nil
			}

			renderPipelineTable(os.Stdout, resp.Pipelines)
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "P", "", "list all pipelines of this project")

	return cmd
}

func renderPipelineTable(out io.Writer, pipelines []*pipeline.Pipeline) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPROJECT\tPR\tSTATUS\tPROGRESS\tSTEP\tAGE")
	for _, p := range pipelines {
		step := p.CurrentStep
		if step == "" {
			step = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t#%d\t%s %s\t%d%%\t%s\t%s\n",
			truncate(p.ID, 12), p.ProjectID, p.PRNumber,
			statusIcon(string(p.Status)), p.Status, p.Progress, step, formatAge(p.CreatedAt))
	}
	_ = w.Flush()
}

func newPipelineShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one pipeline with its step results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p pipeline.Pipeline
			if err := newAPIClient().get(cmd.Context(), "/api/pipelines/"+args[0], &p); err != nil {
				return fmt.Errorf("get pipeline: %w", err)
			}

			if jsonOut {
				return printJSON(p)
			}

			renderPipeline(os.Stdout, &p)
			return nil
		},
	}
}

func renderPipeline(out io.Writer, p *pipeline.Pipeline) {
	fmt.Fprintf(out, "%s %s  %s (%d%%)\n", statusIcon(string(p.Status)), colorize(styleHeading, p.ID), p.Status, p.Progress)
	fmt.Fprintf(out, "  Project: %s\n", p.ProjectID)
	fmt.Fprintf(out, "  PR:      #%d", p.PRNumber)
	if p.PRURL != "" {
		fmt.Fprintf(out, "  %s", colorize(styleDim, p.PRURL))
	}
	fmt.Fprintln(out)
	if p.DeploymentURL != "" {
		fmt.Fprintf(out, "  Deploy:  %s\n", p.DeploymentURL)
	}
	if p.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:   %s\n", colorize(styleErr, p.ErrorMessage))
	}
	if p.EscalationRunID != "" {
		fmt.Fprintf(out, "  Escalated to agent run %s (retry %d)\n", p.EscalationRunID, p.RetryCount)
	}
	fmt.Fprintf(out, "  Started: %s (%s ago)\n", p.CreatedAt.Format("2006-01-02 15:04:05"), formatAge(p.CreatedAt))
	if p.CompletedAt != nil {
		fmt.Fprintf(out, "  Ended:   %s\n", p.CompletedAt.Format("2006-01-02 15:04:05"))
	}

	if len(p.Results) > 0 {
		fmt.Fprintln(out, "  Steps:")
		for _, res := range p.Results {
			marker := "✓"
			detail := ""
			if !res.Success {
				marker = "✗"
				detail = "  " + truncate(res.Error, 60)
			}
			if res.TestsPassed+res.TestsFailed > 0 {
				detail += fmt.Sprintf("  (%d passed, %d failed)", res.TestsPassed, res.TestsFailed)
			}
			fmt.Fprintf(out, "    %s %s%s\n", marker, res.Step, detail)
		}
	}
}

func newPipelineCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a running pipeline",
		Long: `Cancel a pending or running pipeline.

The daemon stops the run at its next step boundary and tears down the
workspace. Completed pipelines cannot be cancelled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient().post(cmd.Context(), "/api/pipelines/"+args[0]+"/cancel", nil, nil); err != nil {
				return fmt.Errorf("cancel pipeline: %w", err)
			}
			fmt.Printf("Cancelled pipeline %s\n", args[0])
			return nil
		},
	}
}
