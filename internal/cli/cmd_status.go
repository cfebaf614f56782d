package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deckhandhq/deckhand/internal/api"
)

// newStatusCmd creates the status command showing the daemon's state
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show orchestration state across all projects",
		Long: `Show a summary of the daemon's orchestration state: registered
projects, active workflows and autonomous runs, and pipeline counts
per status.

Example:
  deckhand status
  deckhand status --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var summary api.DashboardSummary
			if err := newAPIClient().get(cmd.Context(), "/api/dashboard/summary", &summary); err != nil {
				return fmt.Errorf("get status: %w", err)
			}

			if jsonOut {
				return printJSON(summary)
			}

			renderSummary(os.Stdout, &summary)
			return nil
		},
	}
}

func renderSummary(out io.Writer, s *api.DashboardSummary) {
	fmt.Fprintln(out, colorize(styleHeading, "deckhand status"))
	fmt.Fprintf(out, "  Projects:        %d\n", s.Projects)
	fmt.Fprintf(out, "  Workflows:       %d active\n", s.ActiveWorkflows)
	fmt.Fprintf(out, "  Autonomous runs: %d active\n", s.ActiveAutonomous)

	p := s.Pipelines
	total := p.Pending + p.Running + p.Completed + p.Failed + p.Cancelled
	fmt.Fprintf(out, "  Pipelines:       %d total", total)
	if total > 0 {
		fmt.Fprintf(out, "  (%d running, %d pending, %d completed, %d failed, %d cancelled)",
			p.Running, p.Pending, p.Completed, p.Failed, p.Cancelled)
	}
	fmt.Fprintln(out)

	if len(s.PerProject) > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "  PROJECT\tREPO\tPIPELINES\tACTIVE\tFAILED\tLAST ACTIVITY")
		for _, proj := range s.PerProject {
			last := "-"
			if !proj.LastActivity.IsZero() {
				last = formatAge(proj.LastActivity) + " ago"
			}
			_, _ = fmt.Fprintf(w, "  %s\t%s\t%d\t%d\t%d\t%s\n",
				proj.Name, truncate(proj.Repo, 40), proj.Pipelines, proj.Active, proj.Failed, last)
		}
		_ = w.Flush()
	}

	fmt.Fprintf(out, "\n%s\n", colorize(styleDim, "generated "+s.GeneratedAt.Format("15:04:05")))
}
