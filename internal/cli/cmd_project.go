package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deckhandhq/deckhand/internal/project"
)

// newProjectCmd creates the project command group
func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage registered projects",
		Long: `Manage the repositories deckhand orchestrates.

Each registered project gets a webhook endpoint and secret; point your
repository host's webhook at it so PR events reach the validation
pipeline.

Example:
  deckhand project add myapp https://github.com/acme/myapp
  deckhand project list
  deckhand project show myapp
  deckhand project remove myapp`,
	}

	cmd.AddCommand(newProjectAddCmd())
	cmd.AddCommand(newProjectListCmd())
	cmd.AddCommand(newProjectShowCmd())
	cmd.AddCommand(newProjectRemoveCmd())

	return cmd
}

// projectPayload mirrors the daemon's project request body.
type projectPayload struct {
	Name          string   `json:"name"`
	RepoURL       string   `json:"repo_url"`
	DefaultBranch string   `json:"default_branch,omitempty"`
	Description   string   `json:"description,omitempty"`
	AutoMerge     *bool    `json:"auto_merge,omitempty"`
	SetupCommand  string   `json:"setup_command,omitempty"`
	DeployCommand string   `json:"deploy_command,omitempty"`
	HealthPath    string   `json:"health_path,omitempty"`
	UISelectors   []string `json:"ui_selectors,omitempty"`
}

// createdProject is the registration response, carrying the webhook
// secret the daemon reveals exactly once.
type createdProject struct {
	project.Project
	WebhookSecret string `json:"webhook_secret"`
	WebhookURL    string `json:"webhook_url"`
}

func newProjectAddCmd() *cobra.Command {
	var (
		branch        string
		description   string
		autoMerge     bool
		setupCommand  string
		deployCommand string
		healthPath    string
		uiSelectors   []string
	)

	cmd := &cobra.Command{
		Use:   "add <name> <repo-url>",
		Short: "Register a repository",
		Long: `Register a repository with the deckhand daemon.

The daemon answers with the project ID and a webhook secret. Configure
your repository host to send pull request webhooks to the printed URL
with that secret; the secret is shown only once.

Examples:
  deckhand project add myapp https://github.com/acme/myapp
  deckhand project add myapp https://gitlab.com/acme/myapp --auto-merge
  deckhand project add shop https://github.com/acme/shop \
      --setup-command "npm install" --deploy-command "npm start" --health-path /healthz`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := projectPayload{
				Name:          args[0],
				RepoURL:       args[1],
				DefaultBranch: branch,
				Description:   description,
				SetupCommand:  setupCommand,
				DeployCommand: deployCommand,
				HealthPath:    healthPath,
				UISelectors:   uiSelectors,
			}
			if cmd.Flags().Changed("auto-merge") {
				payload.AutoMerge = &autoMerge
			}

			var created createdProject
			if err := newAPIClient().post(cmd.Context(), "/api/projects", payload, &created); err != nil {
				return fmt.Errorf("register project: %w", err)
			}

			if jsonOut {
				return printJSON(created)
			}

			fmt.Printf("Registered project %s\n", created.Name)
			fmt.Printf("  ID:      %s\n", created.ID)
			fmt.Printf("  Repo:    %s (%s)\n", created.FullName(), created.Host)
			fmt.Printf("  Webhook: %s\n", created.WebhookURL)
			fmt.Printf("  Secret:  %s\n", created.WebhookSecret)
			fmt.Println()
			fmt.Println("Store the secret now; it is not shown again.")
			return nil
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "default branch (default main)")
	cmd.Flags().StringVar(&description, "description", "", "project description, given to agents as context")
	cmd.Flags().BoolVar(&autoMerge, "auto-merge", false, "merge PRs automatically after validation")
	cmd.Flags().StringVar(&setupCommand, "setup-command", "", "shell command that prepares a fresh clone")
	cmd.Flags().StringVar(&deployCommand, "deploy-command", "", "shell command that starts the app for validation")
	cmd.Flags().StringVar(&healthPath, "health-path", "", "HTTP path polled to confirm a deployment is up")
	cmd.Flags().StringArrayVar(&uiSelectors, "ui-selector", nil, "CSS selector the UI validator must find (repeatable)")

	return cmd
}

func newProjectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Projects []*project.Project `json:"projects"`
				Count    int                `json:"count"`
			}
			if err := newAPIClient().get(cmd.Context(), "/api/projects", &resp); err != nil {
				return fmt.Errorf("list projects: %w", err)
			}

			if jsonOut {
				return printJSON(resp.Projects)
			}
			if len(resp.Projects) == 0 {
				fmt.Println("No projects registered. Run 'deckhand project add <name> <repo-url>'.")
				return nil
			}

			renderProjectTable(os.Stdout, resp.Projects)
			return nil
		},
	}
}

func renderProjectTable(out io.Writer, projects []*project.Project) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tREPO\tHOST\tAUTO-MERGE")
	for _, p := range projects {
		autoMerge := ""
		if p.AutoMerge {
			autoMerge = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncate(p.ID, 12), p.Name, p.FullName(), p.Host, autoMerge)
	}
	_ = w.Flush()
}

func newProjectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var proj project.Project
			if err := newAPIClient().get(cmd.Context(), "/api/projects/"+args[0], &proj); err != nil {
				return fmt.Errorf("get project: %w", err)
			}

			if jsonOut {
				return printJSON(proj)
			}

			renderProject(os.Stdout, &proj)
			return nil
		},
	}
}

func renderProject(out io.Writer, p *project.Project) {
	fmt.Fprintf(out, "%s\n", colorize(styleHeading, p.Name))
	fmt.Fprintf(out, "  ID:        %s\n", p.ID)
	fmt.Fprintf(out, "  Repo:      %s (%s)\n", p.RepoURL, p.Host)
	if p.DefaultBranch != "" {
		fmt.Fprintf(out, "  Branch:    %s\n", p.DefaultBranch)
	}
	if p.Description != "" {
		fmt.Fprintf(out, "  About:     %s\n", truncate(p.Description, 80))
	}
	fmt.Fprintf(out, "  AutoMerge: %t\n", p.AutoMerge)
	if p.SetupCommand != "" {
		fmt.Fprintf(out, "  Setup:     %s\n", p.SetupCommand)
	}
	if p.DeployCommand != "" {
		fmt.Fprintf(out, "  Deploy:    %s\n", p.DeployCommand)
	}
	if p.HealthPath != "" {
		fmt.Fprintf(out, "  Health:    %s\n", p.HealthPath)
	}
	if len(p.UISelectors) > 0 {
		fmt.Fprintf(out, "  Selectors: %v\n", p.UISelectors)
	}
	fmt.Fprintf(out, "  Webhook:   /api/webhooks/%s\n", p.ID)
	fmt.Fprintf(out, "  Created:   %s\n", p.CreatedAt.Format("2006-01-02 15:04"))
}

func newProjectRemoveCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a project and its pipeline history",
		Long: `Remove a project from the daemon.

All validation pipeline rows for the project are deleted with it.
Running pipelines are not interrupted, but their state is gone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				var proj project.Project
				if err := newAPIClient().get(cmd.Context(), "/api/projects/"+args[0], &proj); err != nil {
					return fmt.Errorf("get project: %w", err)
				}
				fmt.Printf("Remove project %s (%s) and its pipeline history? [y/N] ", proj.Name, proj.FullName())
				var answer string
				_, _ = fmt.Scanln(&answer)
				if answer != "y" && answer != "Y" && answer != "yes" {
					fmt.Println("Aborted.")
					return nil
				}
			}

			if err := newAPIClient().delete(cmd.Context(), "/api/projects/"+args[0]); err != nil {
				return fmt.Errorf("remove project: %w", err)
			}
			fmt.Printf("Removed project %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}
