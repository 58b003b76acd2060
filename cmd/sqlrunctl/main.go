// Package main is the entry point for the sqlrunctl CLI binary.
package main

import (
	"os"

	"github.com/kiranshivaraju/sqlrunner/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
