package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/deckhandhq/deckhand/internal/autonomous"
	"github.com/deckhandhq/deckhand/internal/jira"
)

// newRunCmd creates the run command for autonomous workflows
func newRunCmd() *cobra.Command {
	var (
		projectID     string
		fromJira      string
		maxIterations int
		contextPairs  []string
		detach        bool
		jiraURL       string
		jiraEmail     string
		jiraToken     string
	)

	cmd := &cobra.Command{
		Use:   "run [requirements...]",
		Short: "Run an autonomous workflow against a project",
		Long: `Start an autonomous workflow: the daemon plans with an agent, opens a
PR, validates it, merges, and compares the result against the
requirements, iterating until they are met or the iteration budget runs
out.

Requirements come from the command line or from a Jira issue via
--from-jira. Jira credentials resolve from flags, then DECKHAND_JIRA_*
environment variables, then the config file.

Examples:
  deckhand run --project myapp "Add a /healthz endpoint returning 200"
  deckhand run --project myapp --from-jira PROJ-123
  deckhand run --project myapp --max-iterations 3 --detach "Fix the login redirect"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project is required")
			}

			requirements := strings.TrimSpace(strings.Join(args, " "))
			if fromJira != "" {
				if requirements != "" {
					return fmt.Errorf("give requirements either as arguments or via --from-jira, not both")
				}
				var err error
				requirements, err = fetchJiraRequirements(cmd.Context(), fromJira, jiraURL, jiraEmail, jiraToken)
				if err != nil {
					return err
				}
			}
			if requirements == "" {
				return fmt.Errorf("no requirements given (pass text arguments or --from-jira <issue>)")
			}

			runContext, err := parseKeyValues(contextPairs)
			if err != nil {
				return err
			}

			req := autonomous.Request{
				ProjectID:     projectID,
				Requirements:  requirements,
				Context:       runContext,
				MaxIterations: maxIterations,
			}

			client := newAPIClient()
			var started struct {
				WorkflowID string `json:"workflow_id"`
			}
			if err := client.post(cmd.Context(), "/api/autonomous", req, &started); err != nil {
				return fmt.Errorf("start autonomous workflow: %w", err)
			}

			if detach {
				if jsonOut {
					return printJSON(started)
				}
				fmt.Printf("Started workflow %s\n", started.WorkflowID)
				fmt.Printf("Check progress with: deckhand workflow status %s\n", started.WorkflowID)
				return nil
			}

			if !quiet {
				fmt.Printf("Started workflow %s on project %s\n", started.WorkflowID, projectID)
			}
			return followAutonomous(cmd.Context(), client, started.WorkflowID, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "P", "", "project ID or name (required)")
	cmd.Flags().StringVar(&fromJira, "from-jira", "", "Jira issue key to pull requirements from")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "iteration budget (0 = server default)")
	cmd.Flags().StringArrayVar(&contextPairs, "context", nil, "extra context as key=value (repeatable)")
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "start the workflow and return immediately")
	cmd.Flags().StringVar(&jiraURL, "jira-url", "", "Jira site URL (https://example.atlassian.net)")
	cmd.Flags().StringVar(&jiraEmail, "jira-email", "", "Jira account email")
	cmd.Flags().StringVar(&jiraToken, "jira-token", "", "Jira API token")

	return cmd
}

// fetchJiraRequirements renders an issue into the requirements block,
// resolving credentials as flag > environment > config file.
func fetchJiraRequirements(ctx context.Context, issueKey, flagURL, flagEmail, flagToken string) (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}

	client, err := jira.NewClient(jira.ClientConfig{
		BaseURL:         resolveString(flagURL, "DECKHAND_JIRA_SITE_URL", cfg.Jira.SiteURL),
		Email:           resolveString(flagEmail, "DECKHAND_JIRA_EMAIL", cfg.Jira.Email),
		APIToken:        resolveString(flagToken, "DECKHAND_JIRA_API_TOKEN", cfg.Jira.APIToken),
		AcceptanceField: cfg.Jira.AcceptanceField,
	})
	if err != nil {
		return "", fmt.Errorf("jira not configured: %w (set jira.site_url, jira.email, jira.api_token)", err)
	}

	requirements, err := client.FetchRequirements(ctx, issueKey)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", issueKey, err)
	}
	return requirements, nil
}

// followAutonomous polls the workflow until it finishes, printing phase
// log entries as they appear.
func followAutonomous(ctx context.Context, client *apiClient, id string, out io.Writer) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	seen := 0
	lastIteration := 0
	for {
		var st autonomous.State
		if err := client.get(ctx, "/api/autonomous/"+id, &st); err != nil {
			return fmt.Errorf("poll workflow: %w", err)
		}

		seen, lastIteration = printNewPhases(out, &st, seen, lastIteration)

		if st.Status.IsTerminal() {
			if jsonOut {
				return printJSON(st)
			}
			icon := statusIcon(string(st.Status))
			fmt.Fprintf(out, "\n%s %s after %d iteration(s)\n", icon, st.Status, st.Iteration)
			if st.Status == autonomous.StatusFailed {
				return fmt.Errorf("workflow %s failed", id)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("following workflow %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// printNewPhases writes phase log entries past the seen index, with an
// iteration banner whenever the iteration number advances.
func printNewPhases(out io.Writer, st *autonomous.State, seen, lastIteration int) (int, int) {
	for _, phase := range st.PhaseLog[seen:] {
		if phase.Iteration != lastIteration {
			fmt.Fprintf(out, "\n━━━ Iteration %d/%d ━━━\n", phase.Iteration, st.MaxIterations)
			lastIteration = phase.Iteration
		}
		switch {
		case phase.Skipped:
			fmt.Fprintf(out, "  - %s (skipped)\n", phase.Phase)
		case phase.Success:
			fmt.Fprintf(out, "  ✓ %s\n", phase.Phase)
		default:
			fmt.Fprintf(out, "  ✗ %s: %s\n", phase.Phase, phase.Error)
		}
	}
	return len(st.PhaseLog), lastIteration
}
