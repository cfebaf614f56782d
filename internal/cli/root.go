// Package cli implements the deckhand command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	serverURL string
	verbose   bool
	quiet     bool
	jsonOut   bool
	noColor   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "deckhand",
	Short: "Agent-driven repository orchestration daemon",
	Long: `deckhand runs AI coding agents against your repositories and watches
the pull requests they open. Each PR runs through a validation pipeline
(clone, setup, tests, deploy, UI checks) and merges automatically when
the project allows it.

Features:
  • Autonomous runs that iterate until requirements are met
  • Step-template workflows dispatched to agent capabilities
  • Webhook-driven PR validation pipelines with auto-merge
  • Live progress over WebSocket for the dashboard UI

Quick start:
  deckhand init                         Create .deckhand/config.yaml
  deckhand serve                        Start the daemon
  deckhand project add myapp <repo-url> Register a repository
  deckhand run --project <id> "Add a health endpoint"
  deckhand status                       Show orchestration state`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .deckhand/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "daemon base URL (default http://localhost:8420)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	// Add subcommands
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newProjectCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newWorkflowCmd())
	rootCmd.AddCommand(newPipelineCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in .deckhand directory
		viper.AddConfigPath(".deckhand")
		viper.AddConfigPath("$HOME/.deckhand")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("DECKHAND")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
