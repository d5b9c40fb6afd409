// Package main provides the entry point for the ragversion CLI.
package main

import (
	"fmt"
	"os"

	"github.com/sourangshupal/ragversion/cmd/ragversion/cmd"
	"github.com/sourangshupal/ragversion/internal/ragerrors"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ragerrors.FormatForCLI(err))
		os.Exit(1)
	}
}
