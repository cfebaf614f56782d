// Package main provides the entry point for the deckhand CLI.
package main

import (
	"os"

	"github.com/deckhandhq/deckhand/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
