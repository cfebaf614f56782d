package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build information, set via ldflags at release time.
var (
	Version = "0.1.0-dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOut {
				return printJSON(map[string]string{
					"version": Version,
					"commit":  Commit,
					"date":    Date,
				})
			}
			fmt.Printf("deckhand version %s\n", Version)
			if verbose {
				fmt.Printf("  commit: %s\n", Commit)
				fmt.Printf("  built:  %s\n", Date)
			}
			return nil
		},
	}
}
