// Package main is the entry point for the relq CLI tool.
package main

import (
	"os"

	"github.com/aidanlsb/relq/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
