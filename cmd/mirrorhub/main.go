// Package main is the entry point for the mirrorhub CLI.
package main

import (
	"os"

	"github.com/mirrorhub/mirrorhub/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
