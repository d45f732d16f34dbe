// ratos is the command line entry point for the RatOS G-code
// post-processor.
//
// Usage:
//
//	ratos postprocess [--non-interactive] [-i|--idex] [-o|--overwrite]
//	                  [-O|--overwrite-input] [-a|--allow-unsupported-slicer-versions]
//	                  [-u|--allow-unknown-generator] <input> [output]
//
// Exit codes: 0 success, 1 any error. In non-interactive mode stdout is a
// stream of JSON records; logs go to stderr.
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "ratos",
	Short:         "RatOS G-code tooling",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
