// Package main provides the entry point for the loupe CLI.
package main

import (
	"os"

	"github.com/loupe-search/loupe/cmd/loupe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
