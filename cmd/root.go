// Package cmd holds the fdnode command-line surface: a Cobra root
// command plus the start and dashboard subcommands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fdnode",
	Short: "Run and observe failure-detector / consensus nodes",
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
