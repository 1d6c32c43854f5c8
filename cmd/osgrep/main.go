// Package main provides the entry point for the osgrep CLI.
package main

import (
	"os"

	"github.com/osgrep/osgrep/cmd/osgrep/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
