// Package main provides the entry point for the Hatchling CLI.
package main

import (
	"fmt"
	"os"

	"github.com/kozo2/Hatchling/cmd/hatchling/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
