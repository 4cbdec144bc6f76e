// Package main provides the entry point for the othala daemon and CLI.
package main

import (
	"os"

	"github.com/othala/othala/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
