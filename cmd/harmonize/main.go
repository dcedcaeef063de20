// Package main provides the harmonize command.
package main

import (
	"os"

	"github.com/leapstack-labs/harmonize/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
