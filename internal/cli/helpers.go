// Package cli implements the deckhand command-line interface.
// This file contains shared helper functions used across multiple commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Styles for terminal output. Applied only when useColor() is true.
var (
	styleHeading = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	styleErr     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// useColor reports whether output should be styled. Piped output and
// --no-color both disable styling.
func useColor() bool {
	return !noColor && isatty.IsTerminal(os.Stdout.Fd())
}

// colorize applies a style only when color output is enabled.
func colorize(style lipgloss.Style, s string) string {
	if !useColor() {
		return s
	}
	return style.Render(s)
}

// resolveString returns the first non-empty value among a flag value, an
// environment variable, and a config value. Flags win over environment,
// environment wins over config.
func resolveString(flagVal, envVar, configVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return configVal
}

// truncate shortens a string to maxLen characters, appending "..." when
// truncation occurs.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// statusIcon returns a one-character marker for a status string. The
// status vocabularies of pipelines, workflows, and autonomous runs
// overlap enough to share one mapping.
func statusIcon(status string) string {
	switch strings.ToLower(status) {
	case "completed", "converged", "succeeded":
		return "✓"
	case "failed", "exhausted":
		return "✗"
	case "running":
		return "●"
	case "pending":
		return "○"
	case "cancelled":
		return "⊘"
	default:
		return "·"
	}
}

// formatAge renders the time since t compactly: 45s, 12m, 3h, 5d.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// parseKeyValues turns ["k=v", "a=b"] into a map. Values may contain
// '=' characters; only the first one splits.
func parseKeyValues(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid key=value pair %q", pair)
		}
		out[key] = value
	}
	return out, nil
}
