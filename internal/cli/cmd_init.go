package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/deckhandhq/deckhand/internal/config"
	"github.com/deckhandhq/deckhand/internal/wizard"
)

// newInitCmd creates the init command for first-time setup
func newInitCmd() *cobra.Command {
	var (
		forceFlag   bool
		plainFlag   bool
		defaultsArg bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the deckhand configuration",
		Long: `Create .deckhand/config.yaml and the workspace directory layout.

Runs an interactive setup wizard on a terminal. Use --plain for simple
line prompts (works over SSH and in scripts), or --defaults to write
the default configuration without asking anything.

Examples:
  deckhand init              # Interactive wizard
  deckhand init --plain      # Line-based prompts
  deckhand init --defaults   # No prompts, default config
  deckhand init --force      # Overwrite an existing config`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !forceFlag && config.IsInitialized() {
				return fmt.Errorf("deckhand already initialized in this directory (use --force to overwrite)")
			}

			var cfg *config.Config
			switch {
			case defaultsArg:
				cfg = config.Default()
			case plainFlag || !isatty.IsTerminal(os.Stdout.Fd()):
				var err error
				cfg, err = plainInitConfig(os.Stdin)
				if err != nil {
					return err
				}
			default:
				w := buildInitWizard()
				if err := w.Run(); err != nil {
					if errors.Is(err, wizard.ErrCancelled) {
						fmt.Println("Setup cancelled, nothing written.")
						return nil
					}
					return fmt.Errorf("setup wizard: %w", err)
				}
				cfg = configFromWizard(w.State())
			}

			if err := config.Init(forceFlag); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			fmt.Println("Initialized deckhand.")
			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  deckhand serve                         Start the daemon")
			fmt.Println("  deckhand project add <name> <repo-url> Register a repository")
			return nil
		},
	}

	cmd.Flags().BoolVar(&forceFlag, "force", false, "overwrite existing configuration")
	cmd.Flags().BoolVar(&plainFlag, "plain", false, "line prompts instead of the interactive wizard")
	cmd.Flags().BoolVar(&defaultsArg, "defaults", false, "write the default config without prompting")

	return cmd
}

// plainInitConfig collects the same settings as the wizard with plain
// line prompts. Secrets are read without echo when stdin is a terminal.
func plainInitConfig(in *os.File) (*config.Config, error) {
	cfg := config.Default()
	reader := bufio.NewReader(in)

	port, err := promptLine(reader, "Daemon port", "8420")
	if err != nil {
		return nil, err
	}
	if n, err := strconv.Atoi(port); err == nil && n >= 1 && n <= 65535 {
		cfg.Server.Port = n
	} else {
		return nil, fmt.Errorf("invalid port %q", port)
	}

	dbDriver, err := promptLine(reader, "Database (sqlite/postgres)", "sqlite")
	if err != nil {
		return nil, err
	}
	switch dbDriver {
	case "sqlite":
	case "postgres":
		cfg.Database.Driver = "postgres"
		if cfg.Database.Postgres.Host, err = promptLine(reader, "PostgreSQL host", "localhost"); err != nil {
			return nil, err
		}
		pgPort, err := promptLine(reader, "PostgreSQL port", "5432")
		if err != nil {
			return nil, err
		}
		if n, err := strconv.Atoi(pgPort); err == nil {
			cfg.Database.Postgres.Port = n
		}
		if cfg.Database.Postgres.Database, err = promptLine(reader, "PostgreSQL database", "deckhand"); err != nil {
			return nil, err
		}
		if cfg.Database.Postgres.User, err = promptLine(reader, "PostgreSQL user", "deckhand"); err != nil {
			return nil, err
		}
		if cfg.Database.Postgres.Password, err = promptSecret(in, reader, "PostgreSQL password"); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown database %q (use sqlite or postgres)", dbDriver)
	}

	host, err := promptLine(reader, "Repository host (github/gitlab)", "github")
	if err != nil {
		return nil, err
	}
	switch host {
	case "github":
		cfg.Hosting.Provider = "github"
		if cfg.Hosting.GitHubToken, err = promptSecret(in, reader, "GitHub token (empty = GITHUB_TOKEN at runtime)"); err != nil {
			return nil, err
		}
	case "gitlab":
		cfg.Hosting.Provider = "gitlab"
		if cfg.Hosting.GitLabToken, err = promptSecret(in, reader, "GitLab token (empty = GITLAB_TOKEN at runtime)"); err != nil {
			return nil, err
		}
		if cfg.Hosting.GitLabURL, err = promptLine(reader, "GitLab URL (empty for gitlab.com)", ""); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown host %q (use github or gitlab)", host)
	}

	if cfg.Agents.BaseURL, err = promptLine(reader, "Agent service URL", ""); err != nil {
		return nil, err
	}
	if cfg.Agents.APIKey, err = promptSecret(in, reader, "Agent service API key"); err != nil {
		return nil, err
	}
	if cfg.Validators.BuildURL, err = promptLine(reader, "Build validator URL (empty to disable)", ""); err != nil {
		return nil, err
	}
	if cfg.Validators.UIURL, err = promptLine(reader, "UI validator URL (empty to disable)", ""); err != nil {
		return nil, err
	}

	return cfg, nil
}

// promptLine asks for one value, returning the default when the user
// just presses enter.
func promptLine(reader *bufio.Reader, label, defaultVal string) (string, error) {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultVal, nil
	}
	return line, nil
}

// promptSecret reads a value without echoing it when stdin is a
// terminal. Piped input falls back to a plain line read so scripted
// setup still works.
func promptSecret(in *os.File, reader *bufio.Reader, label string) (string, error) {
	if !isatty.IsTerminal(in.Fd()) {
		return promptLine(reader, label, "")
	}
	fmt.Printf("%s: ", label)
	secret, err := term.ReadPassword(int(in.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}
