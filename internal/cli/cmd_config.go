package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/deckhandhq/deckhand/internal/config"
)

// newConfigCmd creates the config command group
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage configuration",
		Long: `View and manage deckhand configuration.

Configuration is merged from these sources, later overriding earlier:

  1. Built-in defaults
  2. System config (/etc/deckhand/config.yaml)
  3. User config (~/.deckhand/config.yaml)
  4. Project config (./.deckhand/config.yaml)
  5. DECKHAND_* environment variables

Keys use dot notation, e.g. server.port or pipeline.deploy_timeout.

Examples:
  deckhand config show
  deckhand config show --source
  deckhand config get server.port
  deckhand config set server.port 9000
  deckhand config set --user log.level debug`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var showSource bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the merged configuration",
		Long: `Show the configuration merged from all sources.

By default the output is valid YAML. With --source each value is
annotated with where it came from.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := config.LoadWithSources()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if jsonOut {
				return printJSON(tc.Config)
			}
			if showSource {
				printConfigWithSources(os.Stdout, tc)
				return nil
			}
			return printConfigYAML(os.Stdout, tc.Config)
		},
	}

	cmd.Flags().BoolVar(&showSource, "source", false, "annotate each value with its origin")

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	var showSource bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			tc, err := config.LoadWithSources()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			value, err := tc.Config.Value(key)
			if err != nil {
				return err
			}

			if showSource {
				fmt.Printf("%s (from %s)\n", value, tc.GetSource(key))
			} else {
				fmt.Println(value)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSource, "source", false, "show where the value came from")

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	var userScope bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Long: `Set a configuration value.

By default the value is written to the project config
(.deckhand/config.yaml). With --user it goes to ~/.deckhand/config.yaml
and applies to every project.

Examples:
  deckhand config set server.port 9000
  deckhand config set pipeline.deploy_timeout 15m
  deckhand config set --user log.level debug`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			targetPath := filepath.Join(config.DeckhandDir, config.ConfigFileName)
			targetName := ".deckhand/config.yaml"
			if userScope {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("get home directory: %w", err)
				}
				targetPath = filepath.Join(home, config.DeckhandDir, config.ConfigFileName)
				targetName = "~/.deckhand/config.yaml"
			}

			// Missing target falls back to defaults, so the first set
			// creates the file.
			cfg, err := config.LoadFrom(targetPath)
			if err != nil {
				return fmt.Errorf("load %s: %w", targetName, err)
			}
			if err := cfg.SetValue(key, value); err != nil {
				return err
			}
			if err := cfg.SaveTo(targetPath); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			fmt.Printf("Set %s = %s in %s\n", key, value, targetName)
			return nil
		},
	}

	cmd.Flags().BoolVar(&userScope, "user", false, "write to ~/.deckhand/config.yaml")

	return cmd
}

// printConfigYAML writes the config as YAML.
func printConfigYAML(out io.Writer, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Fprint(out, string(data))
	return nil
}

// printConfigWithSources writes one "path = value (source)" line per
// config field, grouped in file order.
func printConfigWithSources(out io.Writer, tc *config.TrackedConfig) {
	for _, path := range config.AllPaths() {
		value, err := tc.Config.Value(path)
		if err != nil {
			continue
		}
		fmt.Fprintf(out, "%s = %s (%s)\n", path, value, tc.GetSource(path))
	}
}
